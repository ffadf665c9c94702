package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/gmottadev/pageturner-backend/pkg/config"
	"github.com/gmottadev/pageturner-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is the health check surface a dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerParams configures the operational HTTP endpoint of a worker.
type ServerParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       Pinger
	Redis    Pinger
	Registry *prometheus.Registry
}

// NewHandler exposes liveness, readiness and Prometheus metrics for a worker
// process that otherwise serves no HTTP traffic.
func NewHandler(params ServerParams) http.Handler {
	r := chi.NewRouter()

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthLive(params.Config))
		r.Get("/ready", healthReady(params))
	})

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if params.Registry != nil {
		gatherer = params.Registry
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func healthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Pageturner-Env", cfg.App.Env)
		writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
	}
}

func healthReady(params ServerParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-Pageturner-Env", params.Config.App.Env)

		checks := map[string]Pinger{
			"db":    params.DB,
			"redis": params.Redis,
		}
		var (
			errs   error
			failed []string
		)
		for name, pinger := range checks {
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(ctx); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				failed = append(failed, name)
			}
		}
		if errs != nil {
			sort.Strings(failed)
			if params.Logger != nil {
				logCtx := params.Logger.WithField(r.Context(), "checks", strings.Join(failed, ","))
				params.Logger.Error(logCtx, "readiness check failed", errs)
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"checks": strings.Join(failed, ","),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Serve runs the ops listener until ctx is canceled, then drains it.
func Serve(ctx context.Context, addr string, handler http.Handler, logg *logger.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "ops server shutdown failed", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
