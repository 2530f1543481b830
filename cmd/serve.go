package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/config"
	"github.com/sells-group/radar-cli/internal/export"
	"github.com/sells-group/radar-cli/internal/model"
)

var servePort int

// eventBuilder is the part of the pipeline the HTTP handlers need.
type eventBuilder interface {
	BuildEvents(ctx context.Context, windowHours, topK int) ([]model.Event, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve events over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		} else {
			cfg.Server.Port = port
		}

		env, err := initRadar(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Pipeline, cfg.Pipeline),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the HTTP routes. Event builds are serialized: the
// pipeline ingests into a shared store and is not meant to run twice at
// once.
func buildRouter(b eventBuilder, defaults config.PipelineConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var mu sync.Mutex
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		hours, top, err := parseEventsQuery(r, defaults)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if b == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
			return
		}

		events, err := func() ([]model.Event, error) {
			mu.Lock()
			defer mu.Unlock()
			return b.BuildEvents(r.Context(), hours, top)
		}()
		if err != nil {
			zap.L().Error("serve: build events failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build events"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := export.WriteJSON(w, events); err != nil {
			zap.L().Warn("serve: write response", zap.Error(err))
		}
	})

	return r
}

// parseEventsQuery reads ?hours= and ?top=, falling back to config.
func parseEventsQuery(r *http.Request, defaults config.PipelineConfig) (int, int, error) {
	hours, top := defaults.WindowHours, defaults.TopK
	q := r.URL.Query()
	if v := q.Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, eris.Errorf("hours must be a positive integer")
		}
		hours = n
	}
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, eris.Errorf("top must be a non-negative integer")
		}
		top = n
	}
	return hours, top, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
