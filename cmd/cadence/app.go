package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/zulandar/cadence/internal/alert"
	"github.com/zulandar/cadence/internal/config"
	"github.com/zulandar/cadence/internal/db"
	"github.com/zulandar/cadence/internal/dedup"
	"github.com/zulandar/cadence/internal/executor"
	"github.com/zulandar/cadence/internal/intake"
	"github.com/zulandar/cadence/internal/models"
	"github.com/zulandar/cadence/internal/reply"
	"github.com/zulandar/cadence/internal/telemetry"
	"github.com/zulandar/cadence/internal/timeline"
	"github.com/zulandar/cadence/internal/transport"
	"gorm.io/gorm"
)

const (
	defaultConfigPath = "cadence.yaml"
	timeLayout        = "2006-01-02 15:04 MST"
)

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", defaultConfigPath, "path to Cadence config file")
}

// connectFromConfig loads the config and opens the configured database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func newGenerator(cfg *config.Config) (*timeline.Generator, error) {
	return timeline.NewGenerator(cfg.Sequences, cfg.Classification)
}

// app holds the wired components every long-running command shares.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	metrics  *telemetry.Metrics
	executor *executor.Executor
	intake   *intake.Service
	replies  *reply.Handler
	redis    *redis.Client
}

func buildApp(cfg *config.Config, gormDB *gorm.DB) (*app, error) {
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	metrics := telemetry.New()
	alerts, err := alert.New(cfg.Alerts)
	if err != nil {
		return nil, err
	}

	router, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, err
	}
	smsEnabled := false
	for _, ch := range router.Channels() {
		if ch == models.ChannelSMS {
			smsEnabled = true
		}
	}

	a := &app{cfg: cfg, db: gormDB, metrics: metrics}
	var tr transport.Transport = router
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		tr = dedup.New(router, a.redis, cfg.Redis.TTL)
	}

	a.executor, err = executor.New(executor.Opts{
		DB:         gormDB,
		Transport:  tr,
		Content:    cfg.Content,
		Alerts:     alerts,
		Metrics:    metrics,
		BatchSize:  cfg.Sweep.BatchSize,
		ClaimLease: cfg.Sweep.ClaimLease,
		MaxRetries: cfg.Sweep.MaxRetries,
		NoShow:     cfg.NoShow,
		DisableSMS: !smsEnabled,
	})
	if err != nil {
		return nil, err
	}
	a.intake, err = intake.New(intake.Opts{DB: gormDB, Generator: gen})
	if err != nil {
		return nil, err
	}
	a.replies, err = reply.NewHandler(reply.HandlerOpts{DB: gormDB, Alerts: alerts, Metrics: metrics})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}

func formatTime(t time.Time, tz string) string {
	loc, err := timeline.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timeLayout)
}

func formatOptionalTime(t *time.Time, tz string) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t, tz)
}

// truncate shortens s to max runes, adding an ellipsis when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
