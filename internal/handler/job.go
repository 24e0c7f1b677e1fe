package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/service"
	"github.com/archifusion/api/internal/store"
	"github.com/archifusion/api/pkg/response"
)

type JobHandler struct {
	service *service.JobService
	logger  *zap.Logger
}

func NewJobHandler(svc *service.JobService, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{
		service: svc,
		logger:  logger,
	}
}

// Submit handles POST /jobs
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	var req model.InputBundle
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		return h.fail(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /jobs/:id
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Status(c.UserContext(), jobID)
	if err != nil {
		return h.fail(c, err)
	}

	return response.OK(c, result)
}

// Stream handles POST /jobs/stream. Events are written as server-sent
// events until the job reaches a terminal state.
func (h *JobHandler) Stream(c *fiber.Ctx) error {
	var req model.InputBundle
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	// The body writer runs after the handler returns; ctx ends with it.
	ctx, cancel := context.WithCancel(context.Background())
	result, events, err := h.service.Stream(ctx, &req)
	if err != nil {
		cancel()
		return h.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Job-ID", result.JobID)

	logger := h.logger.With(zap.String("job_id", result.JobID))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("failed to marshal stream event", zap.Error(err))
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			if err := w.Flush(); err != nil {
				logger.Info("stream client disconnected", zap.Error(err))
				return
			}
		}
	})
	return nil
}

// Quick handles POST /jobs/quick
func (h *JobHandler) Quick(c *fiber.Ctx) error {
	var req model.QuickRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Quick(c.UserContext(), &req)
	if err != nil {
		return h.fail(c, err)
	}

	return response.OK(c, result)
}

// fail maps service errors onto the response envelope
func (h *JobHandler) fail(c *fiber.Ctx, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		var details interface{}
		if len(verr.Details) > 0 {
			details = verr.Details
		}
		return response.ValidationError(c, verr.Message, details)
	case errors.Is(err, store.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrUnavailable):
		return response.Unavailable(c, "Job processing is unavailable")
	case model.IsKind(err, model.KindSynthesis):
		return response.SynthesisError(c, err.Error())
	default:
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return response.ServiceError(c, err.Error())
	}
}
