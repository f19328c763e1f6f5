// Package stream serves server-sent event feeds backed by the event bus.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/warp-server/internal/events"
)

// Snapshot renders the current state sent as one data frame.
type Snapshot func(ctx context.Context) (any, error)

// Subscriber is the part of the bus a stream needs.
type Subscriber interface {
	Subscribe(topics ...events.Topic) (<-chan events.Event, func())
}

// Write sends a snapshot, then a fresh snapshot after every event, and a
// heartbeat comment whenever heartbeat passes. It returns when ctx is done or
// the subscription closes; a failed write or snapshot is returned.
func Write(ctx context.Context, w io.Writer, flush func(), updates <-chan events.Event, heartbeat time.Duration, snapshot Snapshot) error {
	send := func() error {
		state, err := snapshot(ctx)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(state)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flush()
		return nil
	}

	if err := send(); err != nil {
		return err
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			// one snapshot covers every event already queued
			drain(updates)
			if err := send(); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ":heartbeat\n\n"); err != nil {
				return err
			}
			flush()
		}
	}
}

func drain(updates <-chan events.Event) {
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Response streams topics from bus to one client for as long as the request
// lives.
func Response(name string, bus Subscriber, heartbeat time.Duration, logger *logrus.Logger, snapshot Snapshot, topics ...events.Topic) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			ctx.SetHeader("Content-Type", "text/event-stream")
			ctx.SetHeader("Cache-Control", "no-cache")
			ctx.SetHeader("Connection", "keep-alive")
			ctx.SetHeader("X-Accel-Buffering", "no")

			w := ctx.BodyWriter()
			flush := func() {}
			if rw, ok := w.(http.ResponseWriter); ok {
				rc := http.NewResponseController(rw)
				// streams outlive the server's write timeout
				_ = rc.SetWriteDeadline(time.Time{})
				flush = func() { _ = rc.Flush() }
			}

			updates, cancel := bus.Subscribe(topics...)
			defer cancel()

			entry := logger.WithField("stream", name)
			entry.Info("Stream.connected")
			if err := Write(ctx.Context(), w, flush, updates, heartbeat, snapshot); err != nil {
				entry.WithError(err).Warn("Stream.closed with error")
				return
			}
			entry.Info("Stream.disconnected")
		},
	}
}
