package leaderboard

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/handlers/v1/stream"
	"github.com/carson-networks/warp-server/internal/service"
)

// streamLimit is how many supporters each stream frame carries.
const streamLimit = 10

type Supporter struct {
	Rank             int    `json:"rank"`
	CustomerName     string `json:"customerName"`
	TotalAmount      string `json:"totalAmount" doc:"Decimal sum of paid amounts"`
	TotalSeconds     int    `json:"totalSeconds"`
	TransactionCount int    `json:"transactionCount"`
	AvatarURL        string `json:"avatarUrl"`
	LastSupportedAt  string `json:"lastSupportedAt"`
}

type TopSupportersBody struct {
	Supporters []Supporter `json:"supporters"`
}

type TopSupportersInput struct {
	Limit int `query:"limit" doc:"1-100, defaults to 10"`
}

type TopSupportersOutput struct {
	Body TopSupportersBody
}

type leaderboardService interface {
	TopSupporters(ctx context.Context, limit int) ([]service.Supporter, error)
}

// Handler serves the leaderboard snapshot and its event stream.
type Handler struct {
	LeaderboardService leaderboardService
	Bus                stream.Subscriber
	Heartbeat          time.Duration
	Logger             *logrus.Logger
}

func NewHandler(svc leaderboardService, bus stream.Subscriber, heartbeat time.Duration, logger *logrus.Logger) *Handler {
	return &Handler{LeaderboardService: svc, Bus: bus, Heartbeat: heartbeat, Logger: logger}
}

func (h *Handler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "top-supporters",
		Method:      http.MethodGet,
		Path:        "/leaderboard/top-supporters",
		Summary:     "Top supporters",
		Description: "Ranks customers by the total they have paid.",
		Tags:        []string{"Leaderboard"},
	}, h.handleTop)

	huma.Register(api, huma.Operation{
		OperationID: "stream-leaderboard",
		Method:      http.MethodGet,
		Path:        "/leaderboard/stream",
		Summary:     "Leaderboard stream",
		Description: "Server-sent events carrying the top supporters on connect and after every change.",
		Tags:        []string{"Leaderboard"},
	}, h.handleStream)
}

func (h *Handler) top(ctx context.Context, limit int) (TopSupportersBody, error) {
	supporters, err := h.LeaderboardService.TopSupporters(ctx, limit)
	if err != nil {
		return TopSupportersBody{}, err
	}
	body := TopSupportersBody{Supporters: make([]Supporter, len(supporters))}
	for i, s := range supporters {
		body.Supporters[i] = Supporter{
			Rank:             s.Rank,
			CustomerName:     s.CustomerName,
			TotalAmount:      s.TotalAmount.StringFixed(2),
			TotalSeconds:     s.TotalSeconds,
			TransactionCount: s.TransactionCount,
			AvatarURL:        s.AvatarURL,
			LastSupportedAt:  s.LastSupportedAt.Format(time.RFC3339),
		}
	}
	return body, nil
}

func (h *Handler) handleTop(ctx context.Context, input *TopSupportersInput) (*TopSupportersOutput, error) {
	body, err := h.top(ctx, input.Limit)
	if err != nil {
		return nil, httperror.From(err, "failed to load leaderboard")
	}
	return &TopSupportersOutput{Body: body}, nil
}

func (h *Handler) handleStream(_ context.Context, _ *struct{}) (*huma.StreamResponse, error) {
	snapshot := func(ctx context.Context) (any, error) {
		return h.top(ctx, streamLimit)
	}
	return stream.Response("leaderboard", h.Bus, h.Heartbeat, h.Logger, snapshot, events.TopicLeaderboardUpdated), nil
}
