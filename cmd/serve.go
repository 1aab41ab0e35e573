package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/model"
	"github.com/sells-group/sanction-watch/internal/screen"
)

// maxBulkQueries bounds one /v1/check/bulk request.
const maxBulkQueries = 5000

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screening HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initScreener(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env.Screener, env.Registry),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.Strings("sources", env.Screener.Sources()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

type checkRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type bulkRequest struct {
	Queries []checkRequest `json:"queries"`
}

type sourceView struct {
	Health model.SourceHealth `json:"health"`
	Cache  screen.CacheStatus `json:"cache"`
}

// buildRouter wires the API onto a chi router. reg may be nil, in which case
// /metrics is not mounted.
func buildRouter(s *screen.Screener, reg prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Batch-ID"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/check", handleCheck(s))
		r.Post("/check/bulk", handleBulk(s))
		r.Get("/sources", handleSources(s))
	})

	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return r
}

func handleCheck(s *screen.Screener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		q, err := model.NewQuery(req.Name, req.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := s.CheckSingle(r.Context(), q)
		switch {
		case err == nil:
			writeResponse(w, http.StatusOK, res)
		case errors.Is(err, screen.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, res.Reason)
		case errors.Is(err, screen.ErrNoSourceAvailable):
			writeResponse(w, http.StatusUnprocessableEntity, res)
		default:
			zap.L().Warn("check failed", zap.String("name", q.Name), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, res.Reason)
		}
	}
}

func handleBulk(s *screen.Screener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Queries) == 0 {
			writeError(w, http.StatusBadRequest, "queries is required")
			return
		}
		if len(req.Queries) > maxBulkQueries {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d queries per request", maxBulkQueries))
			return
		}

		queries := make([]model.Query, len(req.Queries))
		for i, cr := range req.Queries {
			t, err := model.ParseDeclaredType(cr.Type)
			if err != nil {
				t = model.EntityType(cr.Type)
			}
			queries[i] = model.Query{Name: cr.Name, DeclaredType: t}
		}

		batchID := r.Header.Get("X-Batch-ID")
		if batchID == "" {
			batchID = uuid.NewString()
		}
		results := s.CheckBulk(screen.WithBatchID(r.Context(), batchID), queries)
		writeResponse(w, http.StatusOK, bulkResponse{BatchID: batchID, Results: results})
	}
}

func handleSources(s *screen.Screener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := s.Health()
		status := s.CacheStatus(r.Context())
		out := make([]sourceView, len(health))
		for i := range health {
			out[i] = sourceView{Health: health[i], Cache: status[i]}
		}
		writeResponse(w, http.StatusOK, out)
	}
}

func writeResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeResponse(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
