package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/service"
	"github.com/archifusion/api/internal/store"
	ws "github.com/archifusion/api/internal/websocket"
	"github.com/archifusion/api/pkg/response"
)

type WSHandler struct {
	service *service.JobService
	hub     *ws.Hub
	logger  *zap.Logger
}

func NewWSHandler(svc *service.JobService, hub *ws.Hub, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{service: svc, hub: hub, logger: logger}
}

// Upgrade rejects plain HTTP requests on WebSocket routes
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Jobs handles GET /ws/jobs/:jobId. The first message is the job's current
// state; later ones follow it until the job finishes.
func (h *WSHandler) Jobs() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := h.service.Watch(ctx, jobID)
		if err != nil {
			code, message := response.CodeServiceError, err.Error()
			if errors.Is(err, store.ErrJobNotFound) {
				code, message = response.CodeNotFound, "Job not found"
			}
			data, _ := json.Marshal(model.WSErrorMessage{
				Type:  model.WSMessageTypeError,
				JobID: jobID,
				Error: model.WSError{Code: code, Message: message},
			})
			h.logger.Debug("websocket subscribe rejected", zap.String("job_id", jobID), zap.Error(err))
			c.WriteMessage(websocket.TextMessage, data)
			return
		}

		h.hub.HandleConnection(c, jobID, events, h.encoder(jobID))
	})
}

// encoder renders store events as WebSocket messages.
func (h *WSHandler) encoder(jobID string) ws.Encoder {
	return func(ev model.JobEvent) ([]byte, error) {
		switch ev.Status {
		case model.EventStatusCompleted:
			msg := model.WSCompleteMessage{
				Type:   model.WSMessageTypeComplete,
				JobID:  jobID,
				Result: ev.Result,
			}
			if job, err := h.service.Status(context.Background(), jobID); err == nil {
				msg.Strategy = job.Strategy
				msg.Degradations = job.Degradations
			}
			return json.Marshal(msg)

		case model.EventStatusError:
			return json.Marshal(model.WSErrorMessage{
				Type:  model.WSMessageTypeError,
				JobID: jobID,
				Error: model.WSError{Code: response.CodeJobFailed, Message: ev.Error},
			})

		default:
			progress := 0
			if ev.Progress != nil {
				progress = *ev.Progress
			}
			return json.Marshal(model.WSProgressMessage{
				Type:        model.WSMessageTypeProgress,
				JobID:       jobID,
				Progress:    progress,
				Status:      model.JobStatus(ev.Status),
				CurrentStep: ev.Step,
			})
		}
	}
}
