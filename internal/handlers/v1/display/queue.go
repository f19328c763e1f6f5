package display

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/handlers/v1/stream"
)

type QueueOutput struct {
	Body QueueState
}

// QueueHandler serves the queue snapshot and its event stream.
type QueueHandler struct {
	DisplayService displayService
	Bus            stream.Subscriber
	Heartbeat      time.Duration
	Logger         *logrus.Logger
}

func NewQueueHandler(svc displayService, bus stream.Subscriber, heartbeat time.Duration, logger *logrus.Logger) *QueueHandler {
	return &QueueHandler{DisplayService: svc, Bus: bus, Heartbeat: heartbeat, Logger: logger}
}

func (h *QueueHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-display-queue",
		Method:      http.MethodGet,
		Path:        "/display/queue",
		Summary:     "Display queue",
		Description: "Returns the transaction on screen and the paid transactions waiting.",
		Tags:        []string{"Display"},
	}, h.handleQueue)

	huma.Register(api, huma.Operation{
		OperationID: "stream-display-queue",
		Method:      http.MethodGet,
		Path:        "/display/stream",
		Summary:     "Display queue stream",
		Description: "Server-sent events carrying the queue state on connect and after every change.",
		Tags:        []string{"Display"},
	}, h.handleStream)
}

func (h *QueueHandler) snapshot(ctx context.Context) (any, error) {
	snapshot, err := h.DisplayService.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return toQueueState(snapshot), nil
}

func (h *QueueHandler) handleQueue(ctx context.Context, _ *struct{}) (*QueueOutput, error) {
	snapshot, err := h.DisplayService.Snapshot(ctx)
	if err != nil {
		return nil, httperror.From(err, "failed to load queue")
	}
	return &QueueOutput{Body: toQueueState(snapshot)}, nil
}

func (h *QueueHandler) handleStream(_ context.Context, _ *struct{}) (*huma.StreamResponse, error) {
	return stream.Response("display", h.Bus, h.Heartbeat, h.Logger, h.snapshot, events.TopicQueueUpdated), nil
}
