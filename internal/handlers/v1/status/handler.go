package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carson-networks/warp-server/internal/logging"
)

const probeTimeout = 2 * time.Second

// Check is a dependency probed on every status request.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handler struct {
	checks []Check
}

func NewHandler(checks ...Check) Handler {
	return Handler{checks: checks}
}

func (h *Handler) Handler(w http.ResponseWriter, req *http.Request, logData *logging.LogData) error {
	if req.Method != "GET" {
		w.WriteHeader(http.StatusBadRequest)
		return errors.New("status: method not GET")
	}

	ctx, cancel := context.WithTimeout(req.Context(), probeTimeout)
	defer cancel()
	for _, check := range h.checks {
		endTimer := logData.AddTiming(check.Name + "Ms")
		err := check.Probe(ctx)
		endTimer()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return fmt.Errorf("status: %s: %w", check.Name, err)
		}
	}

	w.WriteHeader(http.StatusOK)
	return nil
}
