package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/cadence/internal/booking"
	"github.com/zulandar/cadence/internal/executor"
	"github.com/zulandar/cadence/internal/intake"
	"github.com/zulandar/cadence/internal/reply"
)

// Booking webhook event types.
const (
	EventCreated   = "created"
	EventCancelled = "cancelled"
	EventCompleted = "completed"
)

func registerRoutes(router *gin.Engine, opts Opts) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	if opts.Intake != nil {
		router.POST("/webhooks/booking", handleBooking(opts.Intake))
	}
	if opts.Replies != nil {
		router.POST("/webhooks/reply", handleReply(opts.Replies))
	}
	if opts.Executor != nil {
		router.POST("/sweep", requireToken(opts.SweepToken), handleSweep(opts.Executor))
	}
}

type bookingRequest struct {
	Event       string    `json:"event"`
	ExternalID  string    `json:"external_id"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Timezone    string    `json:"timezone"`
	JoinURL     string    `json:"join_url"`
	JoinedAt    time.Time `json:"joined_at"`
}

func handleBooking(svc *intake.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()

		switch req.Event {
		case EventCreated, "":
			res, err := svc.BookingCreated(ctx, intake.Created{
				ExternalID:  req.ExternalID,
				Email:       req.Email,
				Phone:       req.Phone,
				Name:        req.Name,
				ScheduledAt: req.ScheduledAt,
				Timezone:    req.Timezone,
				JoinURL:     req.JoinURL,
			})
			if err != nil {
				writeError(c, err)
				return
			}
			code := http.StatusOK
			if res.Created {
				code = http.StatusCreated
			}
			c.JSON(code, gin.H{
				"booking_id":  res.Booking.ID,
				"status":      res.Booking.Status,
				"sequence":    res.Booking.Sequence,
				"created":     res.Created,
				"rescheduled": res.Rescheduled,
				"jobs":        len(res.Timeline),
			})

		case EventCancelled:
			b, n, err := svc.BookingCancelled(ctx, intake.Cancelled{ExternalID: req.ExternalID})
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"booking_id": b.ID, "status": b.Status, "jobs_cancelled": n})

		case EventCompleted:
			b, err := svc.BookingCompleted(ctx, intake.Completed{ExternalID: req.ExternalID, JoinedAt: req.JoinedAt})
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"booking_id": b.ID, "status": b.Status})

		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event " + req.Event})
		}
	}
}

type replyRequest struct {
	Channel    string    `json:"channel"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

func handleReply(h *reply.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req replyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.From == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from is required"})
			return
		}
		out, err := h.Handle(c.Request.Context(), reply.Inbound{
			Channel:    req.Channel,
			Sender:     req.From,
			Body:       req.Body,
			ReceivedAt: req.ReceivedAt,
		})
		if err != nil {
			// Anything but a malformed reply is answered 5xx so the provider
			// redelivers it.
			writeError(c, err)
			return
		}
		resp := gin.H{
			"reply_id":       out.Reply.ID,
			"intent":         out.Intent,
			"status_changed": out.StatusChanged,
			"jobs_cancelled": out.JobsCancelled,
		}
		if out.Booking != nil {
			resp["booking_id"] = out.Booking.ID
			resp["status"] = out.Booking.Status
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleSweep(e *executor.Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		// A sweep outlives the request that triggered it.
		ctx := context.WithoutCancel(c.Request.Context())
		report, marked, err := e.Tick(ctx)
		if err != nil {
			log.Printf("server: sweep: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"released": report.Released,
			"jobs":     len(report.Results),
			"statuses": report.Summary(),
			"no_shows": marked,
		})
	}
}

// requireToken guards a route with a static bearer token. An empty token
// disables the route.
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "sweep trigger disabled"})
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, intake.ErrInvalidEvent), errors.Is(err, reply.ErrInvalidInbound):
		code = http.StatusBadRequest
	case errors.Is(err, booking.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidTransition):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		log.Printf("server: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
