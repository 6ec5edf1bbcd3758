package jobs

import (
	"fmt"
	"time"

	"github.com/zulandar/cadence/internal/models"
	"gorm.io/gorm"
)

// DefaultClaimLease is how long a claim may be held before a later sweep
// treats its holder as dead and releases it.
const DefaultClaimLease = 5 * time.Minute

// ReleaseStale clears claims taken before cutoff on jobs that never resolved.
// It returns the number of claims released.
func ReleaseStale(db *gorm.DB, cutoff, now time.Time) (int64, error) {
	result := db.Model(&models.Job{}).
		Where("claimed = ? AND claimed_at < ? AND executed = ?", true, cutoff, false).
		Updates(map[string]interface{}{
			"claimed":    false,
			"claimed_at": nil,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("jobs: release stale claims: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Due returns unexecuted, uncancelled, unclaimed jobs whose target time has
// passed, oldest first, at most limit rows.
func Due(db *gorm.DB, now time.Time, limit int) ([]models.Job, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("jobs: limit must be > 0")
	}
	var out []models.Job
	if err := db.Where("executed = ? AND cancelled = ? AND claimed = ? AND target_at <= ?", false, false, false, now).
		Order("target_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("jobs: select due: %w", err)
	}
	return out, nil
}

// Claim takes exclusive ownership of a job with one conditional update. It
// returns false when another process already claimed, executed, or
// cancelled the job since it was selected.
func Claim(db *gorm.DB, jobID uint, now time.Time) (bool, error) {
	result := db.Model(&models.Job{}).
		Where("id = ? AND executed = ? AND cancelled = ? AND claimed = ?", jobID, false, false, false).
		Updates(map[string]interface{}{
			"claimed":    true,
			"claimed_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("jobs: claim %d: %w", jobID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Get reloads one job.
func Get(db *gorm.DB, jobID uint) (*models.Job, error) {
	var j models.Job
	if err := db.Where("id = ?", jobID).First(&j).Error; err != nil {
		return nil, fmt.Errorf("jobs: get %d: %w", jobID, err)
	}
	return &j, nil
}

// MarkExecuted resolves a job as done, recording why, and releases its claim.
func MarkExecuted(db *gorm.DB, jobID uint, outcome string, now time.Time) error {
	result := db.Model(&models.Job{}).
		Where("id = ? AND executed = ?", jobID, false).
		Updates(map[string]interface{}{
			"executed":    true,
			"executed_at": now,
			"outcome":     outcome,
			"claimed":     false,
			"claimed_at":  nil,
			"updated_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("jobs: mark %d executed: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d already executed", ErrNotClaimed, jobID)
	}
	return nil
}

// RecordFailure books a failed dispatch attempt and releases the claim. Once
// the attempt count reaches maxRetries the job is cancelled for good with
// the error kept in last_error; permanent reports that case.
func RecordFailure(db *gorm.DB, job *models.Job, errText string, maxRetries int, now time.Time) (permanent bool, err error) {
	if job == nil {
		return false, fmt.Errorf("jobs: job is required")
	}
	attempts := job.RetryCount + 1
	permanent = maxRetries > 0 && attempts >= maxRetries

	updates := map[string]interface{}{
		"retry_count": attempts,
		"last_error":  errText,
		"claimed":     false,
		"claimed_at":  nil,
		"updated_at":  now,
	}
	if permanent {
		updates["cancelled"] = true
		updates["outcome"] = OutcomeFailed
	}
	result := db.Model(&models.Job{}).
		Where("id = ? AND executed = ?", job.ID, false).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("jobs: record failure for %d: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, fmt.Errorf("%w: %d already executed", ErrNotClaimed, job.ID)
	}
	job.RetryCount = attempts
	job.LastError = errText
	job.Claimed = false
	job.ClaimedAt = nil
	if permanent {
		job.Cancelled = true
		job.Outcome = OutcomeFailed
	}
	return permanent, nil
}

// Release drops a claim without resolving the job, returning it to the
// pending pool. Releasing a job that is no longer claimed is a no-op.
func Release(db *gorm.DB, jobID uint, now time.Time) error {
	if err := db.Model(&models.Job{}).
		Where("id = ? AND claimed = ?", jobID, true).
		Updates(map[string]interface{}{
			"claimed":    false,
			"claimed_at": nil,
			"updated_at": now,
		}).Error; err != nil {
		return fmt.Errorf("jobs: release %d: %w", jobID, err)
	}
	return nil
}
