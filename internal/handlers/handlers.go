package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/auth"
	"github.com/example/ekyc-capture/internal/camera"
	"github.com/example/ekyc-capture/internal/imagecodec"
	"github.com/example/ekyc-capture/internal/kyc"
	"github.com/example/ekyc-capture/internal/presenter"
	"github.com/example/ekyc-capture/internal/workflow"
)

// DefaultCameraWait bounds GET /workflow/camera/ready when no timeout is given.
const DefaultCameraWait = 5 * time.Second

// Workflow is the capture machine as seen by the control API.
type Workflow interface {
	Start(ctx context.Context) (workflow.Session, error)
	Resume(ctx context.Context, sessionID string) (workflow.Session, error)
	Snapshot() workflow.Session
	Capture(ctx context.Context) (workflow.Session, error)
	Confirm(ctx context.Context) (workflow.Session, error)
	Retake(ctx context.Context) (workflow.Session, error)
	Back(ctx context.Context) (workflow.Session, workflow.Navigation, error)
	Submit(ctx context.Context) (workflow.Session, error)
	Exit(ctx context.Context) error
	AwaitCamera(ctx context.Context) (workflow.Session, error)
	Metrics() workflow.MetricsSummary
}

// Results exposes the terminal-phase actions.
type Results interface {
	Acknowledge(ctx context.Context) (workflow.Navigation, error)
	TryAgain(ctx context.Context) (workflow.Session, error)
}

// RegisterRoutes wires the control API to the Gin router. Middlewares guard
// every /workflow route; /health stays open.
func RegisterRoutes(router *gin.Engine, machine Workflow, results Results, logger *zap.Logger, middlewares ...gin.HandlerFunc) {
	logger = logger.Named("http")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := router.Group("/workflow", middlewares...)

	group.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, presenter.Render(machine.Snapshot()))
	})

	group.POST("/start", func(c *gin.Context) {
		s, err := machine.Start(c.Request.Context())
		respond(c, logger, s, err)
	})

	group.POST("/resume/:session", func(c *gin.Context) {
		sessionID := c.Param("session")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session is required"})
			return
		}
		s, err := machine.Resume(c.Request.Context(), sessionID)
		respond(c, logger, s, err)
	})

	group.POST("/capture", func(c *gin.Context) {
		s, err := machine.Capture(c.Request.Context())
		respond(c, logger, s, err)
	})

	group.POST("/confirm", func(c *gin.Context) {
		s, err := machine.Confirm(context.WithoutCancel(c.Request.Context()))
		respond(c, logger, s, err)
	})

	group.POST("/retake", func(c *gin.Context) {
		s, err := machine.Retake(c.Request.Context())
		respond(c, logger, s, err)
	})

	group.POST("/back", func(c *gin.Context) {
		s, nav, err := machine.Back(c.Request.Context())
		if err != nil {
			respond(c, logger, s, err)
			return
		}
		view := presenter.Render(s)
		view.Navigate = nav
		c.JSON(http.StatusOK, view)
	})

	group.POST("/submit", func(c *gin.Context) {
		s, err := machine.Submit(context.WithoutCancel(c.Request.Context()))
		respond(c, logger, s, err)
	})

	group.POST("/try-again", func(c *gin.Context) {
		s, err := results.TryAgain(c.Request.Context())
		respond(c, logger, s, err)
	})

	group.POST("/acknowledge", func(c *gin.Context) {
		nav, err := results.Acknowledge(c.Request.Context())
		if err != nil {
			respond(c, logger, workflow.Session{}, err)
			return
		}
		view := presenter.Render(workflow.Session{})
		view.Navigate = nav
		c.JSON(http.StatusOK, view)
	})

	group.POST("/exit", func(c *gin.Context) {
		if err := machine.Exit(c.Request.Context()); err != nil {
			respond(c, logger, workflow.Session{}, err)
			return
		}
		view := presenter.Render(workflow.Session{})
		view.Navigate = workflow.NavigateExit
		c.JSON(http.StatusOK, view)
	})

	group.GET("/camera/ready", func(c *gin.Context) {
		wait := DefaultCameraWait
		if raw := c.Query("timeout"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "timeout must be a positive duration"})
				return
			}
			wait = parsed
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		defer cancel()

		s, err := machine.AwaitCamera(ctx)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, camera.ErrReleased) {
			c.JSON(http.StatusOK, presenter.Render(s))
			return
		}
		respond(c, logger, s, err)
	})

	group.GET("/images/:slot", func(c *gin.Context) {
		s := machine.Snapshot()
		if operator, _ := auth.GetOperator(c.Request.Context()); !s.OwnedBy(operator) {
			c.JSON(http.StatusForbidden, gin.H{"error": workflow.ErrNotOwner.Error()})
			return
		}
		img, ok := s.Image(kyc.Slot(c.Param("slot")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}

		payload, err := imagecodec.DecodeDataURL(img.Encoded())
		if err != nil {
			logger.Error("stored image is not decodable", zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, kyc.FailureOf(err))
			return
		}
		c.Data(http.StatusOK, payload.MIMEType, payload.Bytes)
	})

	group.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, machine.Metrics())
	})
}

// respond renders the session view. Workflow errors that leave the session
// usable still return the view; the failure is attached so the UI can show it.
func respond(c *gin.Context, logger *zap.Logger, s workflow.Session, err error) {
	if err == nil {
		c.JSON(http.StatusOK, presenter.Render(s))
		return
	}

	switch {
	case errors.Is(err, workflow.ErrNoSession), errors.Is(err, workflow.ErrNoCamera):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, workflow.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrSubmissionPending),
		errors.Is(err, presenter.ErrTryAgainUnavailable),
		errors.Is(err, camera.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	view := presenter.Render(s)
	if view.Error == nil {
		failure := kyc.FailureOf(err)
		view.Error = failure
		view.Message = failure.Message
	}
	logger.Debug("workflow operation returned error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusOK, view)
}
