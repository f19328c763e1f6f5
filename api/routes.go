package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/warp-server/internal/handlers/v1/auth"
	"github.com/carson-networks/warp-server/internal/handlers/v1/catalog"
	"github.com/carson-networks/warp-server/internal/handlers/v1/display"
	"github.com/carson-networks/warp-server/internal/handlers/v1/leaderboard"
	"github.com/carson-networks/warp-server/internal/handlers/v1/payment"
	"github.com/carson-networks/warp-server/internal/handlers/v1/status"
	"github.com/carson-networks/warp-server/internal/handlers/v1/transaction"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/service"
	"github.com/carson-networks/warp-server/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type Rest struct {
	Logger          *logrus.Logger
	Port            string
	AdminToken      string
	StreamHeartbeat time.Duration
	Service         *service.Service
	Storage         *storage.Storage
}

// Router builds the chi router with /status and every huma operation.
func (r *Rest) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	var checks []status.Check
	if r.Storage != nil && r.Storage.DB != nil {
		checks = append(checks, status.Check{Name: "postgres", Probe: r.Storage.DB.PingContext})
	}
	statusHandler := status.NewHandler(checks...)
	router.HandleFunc("/status", logging.LoggingWrapper("Status", r.Logger, statusHandler.Handler))

	config := huma.DefaultConfig("Warp Server", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		auth.SchemeName: auth.Scheme(),
	}
	hapi := humachi.New(router, config)
	hapi.UseMiddleware(logging.HumaMiddleware(r.Logger), auth.Middleware(hapi, r.AdminToken))

	svc := r.Service
	transaction.NewCreateTransactionHandler(svc.Transaction).Register(hapi)
	transaction.NewPublicCreateTransactionHandler(svc.Transaction).Register(hapi)
	transaction.NewListTransactionsHandler(svc.Transaction).Register(hapi)
	transaction.NewGetTransactionHandler(svc.Transaction).Register(hapi)
	transaction.NewCancelTransactionHandler(svc.Transaction).Register(hapi)
	transaction.NewCheckStatusHandler(svc.Reconciler).Register(hapi)
	payment.NewWebhookHandler(svc.Payment).Register(hapi)
	display.NewClaimNextHandler(svc.Display).Register(hapi)
	display.NewCompleteHandler(svc.Display).Register(hapi)
	display.NewQueueHandler(svc.Display, svc.Events, r.StreamHeartbeat, r.Logger).Register(hapi)
	leaderboard.NewHandler(svc.Leaderboard, svc.Events, r.StreamHeartbeat, r.Logger).Register(hapi)
	catalog.NewProfilesHandler(svc.Catalog).Register(hapi)
	catalog.NewPackagesHandler(svc.Catalog).Register(hapi)

	return router
}

// Serve listens until ctx is cancelled, then shuts down gracefully. Request
// contexts derive from ctx so open event streams end with it.
func (r *Rest) Serve(ctx context.Context) error {
	server := http.Server{
		Addr:              ":" + r.Port,
		Handler:           r.Router(),
		ReadTimeout:       time.Duration(30) * time.Second,
		WriteTimeout:      time.Duration(30) * time.Second,
		IdleTimeout:       time.Duration(10) * time.Second,
		ReadHeaderTimeout: time.Duration(10) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		r.Logger.WithField("port", r.Port).Info("HttpServer.Serve.listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		r.Logger.WithError(err).Error("HttpServer.Serve.listen error")
		return err
	case <-ctx.Done():
	}

	r.Logger.Info("HttpServer.Serve.shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
