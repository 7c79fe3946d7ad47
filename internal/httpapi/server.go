package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"articled/internal/analytics"
	"articled/internal/engine"
	"articled/pkg/types"
)

// Service defines the engine methods required by the HTTP API layer.
type Service interface {
	Describe() []types.ModelInfo
	Generate(ctx context.Context, name, prompt string, maxNewTokens int) (engine.Result, error)
	ReleaseAll()
	Status() types.StatusResponse
	Ready() bool
}

// Recorder defines the interaction-log methods required by the HTTP API layer.
type Recorder interface {
	Record(model, prompt, response string, failed bool) (types.Interaction, error)
	ReadAll() []types.Interaction
	Clear() error
	Stats() types.StatsResponse
}

// NewMux builds the router with all endpoints and middleware.
func NewMux(svc Service, rec Recorder) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ModelsResponse{Models: svc.Describe()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		handleGenerate(w, r, svc, rec)
	})

	r.Post("/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		svc.ReleaseAll()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "cache cleared"})
	})

	r.Get("/interactions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		records := rec.ReadAll()
		if records == nil {
			records = []types.Interaction{}
		}
		if err := json.NewEncoder(w).Encode(types.InteractionsResponse{Interactions: records}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Delete("/interactions", func(w http.ResponseWriter, r *http.Request) {
		if err := rec.Clear(); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "interactions cleared"})
	})

	r.Get("/interactions/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(w, r, rec)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rec.Stats()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func handleGenerate(w http.ResponseWriter, r *http.Request, svc Service, rec Recorder) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	rid := middleware.GetReqID(r.Context())
	lvl := requestLogLevel(r)
	start := time.Now()
	if lvl >= LevelInfo {
		zlog.Info().Str("request_id", rid).Str("model", req.Model).Int("max_new_tokens", req.MaxNewTokens).Msg("generate start")
	}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	res, err := svc.Generate(ctx, req.Model, req.Prompt, req.MaxNewTokens)
	if err != nil {
		// If context was canceled (client disconnect / shutdown), just return.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		status, outcome := mapGenerateError(err)
		if outcome == "busy" {
			IncrementBackpressure("queue_full")
		}
		ObserveGeneration(req.Model, outcome)

		if engine.IsGenerationFailure(err) {
			// Decode-path failures degrade to the apologetic message; the
			// typed marker keeps "failed" distinguishable from "no output".
			msg := fmt.Sprintf("Error: Could not generate response with %s. Please try again.", req.Model)
			recordInteraction(w, rec, req.Model, req.Prompt, msg, true)
			writeGenerateResponse(w, types.GenerateResponse{
				Model:      req.Model,
				Article:    msg,
				Failed:     true,
				DurationMS: time.Since(start).Milliseconds(),
				RequestID:  rid,
			})
			logGenerateEnd(lvl, rid, http.StatusOK, start, err)
			return
		}
		writeJSONError(w, status, err.Error())
		logGenerateEnd(lvl, rid, status, start, err)
		return
	}

	ObserveGeneration(res.Model, "ok")
	recordInteraction(w, rec, res.Model, req.Prompt, res.Text, false)
	writeGenerateResponse(w, types.GenerateResponse{
		Model:           res.Model,
		Article:         res.Text,
		TruncatedPrompt: res.TruncatedPrompt,
		DurationMS:      res.Duration.Milliseconds(),
		RequestID:       rid,
	})
	logGenerateEnd(lvl, rid, http.StatusOK, start, nil)
}

// mapGenerateError translates typed engine errors to HTTP status codes.
func mapGenerateError(err error) (status int, outcome string) {
	switch {
	case engine.IsUnsupportedModel(err):
		return http.StatusNotFound, "unsupported"
	case engine.IsTooBusy(err):
		return http.StatusTooManyRequests, "busy"
	case engine.IsLoadFailure(err):
		return http.StatusBadGateway, "load_failed"
	case engine.IsGenerationFailure(err):
		return http.StatusOK, "generation_failed"
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode(), "error"
		}
		return http.StatusInternalServerError, "error"
	}
}

// recordInteraction appends to the log best-effort: a persistence failure
// surfaces as a Warning header, never as a request failure.
func recordInteraction(w http.ResponseWriter, rec Recorder, model, prompt, response string, failed bool) {
	if _, err := rec.Record(model, prompt, response, failed); err != nil {
		zlog.Warn().Err(err).Str("model", model).Msg("interaction log append failed")
		w.Header().Set("Warning", `199 articled "interaction not logged"`)
	}
}

func writeGenerateResponse(w http.ResponseWriter, resp types.GenerateResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func logGenerateEnd(lvl LogLevel, rid string, status int, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	ev := zlog.Info().Str("request_id", rid).Int("status", status).Dur("dur", time.Since(start))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("generate end")
}

func handleExport(w http.ResponseWriter, r *http.Request, rec Recorder) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	records := rec.ReadAll()
	name := analytics.ExportFilename(format, time.Now())
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		if err := analytics.WriteCSV(w, records); err != nil {
			zlog.Error().Err(err).Msg("csv export failed")
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		if err := analytics.WriteJSON(w, records); err != nil {
			zlog.Error().Err(err).Msg("json export failed")
		}
	default:
		writeJSONError(w, http.StatusBadRequest, "format must be csv or json")
	}
}
