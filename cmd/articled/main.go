package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"articled/internal/analytics"
	"articled/internal/backend"
	"articled/internal/config"
	"articled/internal/engine"
	"articled/internal/httpapi"
	"articled/internal/registry"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if cfg.File != "" {
		sink := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = zerolog.MultiLevelWriter(w, sink)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envOr("ARTICLED_ADDR", ""), "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", envOr("ARTICLED_CONFIG", ""), "Path to config file (.yaml/.json/.toml)")
	dataDir := flag.String("data-dir", envOr("ARTICLED_DATA_DIR", ""), "Directory for the interaction log")
	defaultModel := flag.String("default-model", envOr("ARTICLED_DEFAULT_MODEL", ""), "Default model name when request omits model")
	backendURL := flag.String("backend-url", envOr("ARTICLED_BACKEND_URL", ""), "Base URL of the completion server")
	backendKind := flag.String("backend", envOr("ARTICLED_BACKEND", "server"), "Inference backend: server or local")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg config.Config
	var watcher *config.Watcher
	if *configPath != "" {
		var err error
		watcher, err = config.NewWatcher(*configPath, log, nil)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		defer watcher.Close()
		cfg = watcher.Snapshot()
	}

	// Flags override the file.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *defaultModel != "" {
		cfg.DefaultModel = *defaultModel
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	cfg = config.ApplyDefaults(cfg)

	log = newLogger(cfg.Log)

	catalog, err := registry.New(cfg.Models)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid model catalog")
	}

	var be backend.Backend
	switch *backendKind {
	case "local":
		be = backend.NewLocal(backend.LocalOptions{})
	case "server":
		be = backend.NewServer(backend.ServerOptions{
			BaseURL:        cfg.Backend.URL,
			APIKey:         cfg.Backend.APIKey,
			RequestTimeout: cfg.Backend.RequestTimeout.Std(),
			ConnectTimeout: cfg.Backend.ConnectTimeout.Std(),
		})
	default:
		log.Fatal().Str("backend", *backendKind).Msg("unknown backend kind")
	}

	eng := engine.New(engine.Config{
		Catalog:       catalog,
		Backend:       be,
		DefaultModel:  cfg.DefaultModel,
		Precision:     cfg.Backend.Precision,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       cfg.MaxWait.Std(),
		Logger:        log.With().Str("component", "engine").Logger(),
	})
	defer eng.ReleaseAll()

	// Hot-reload: swap the catalog when the config file changes. Bad reloads
	// keep the running catalog.
	if watcher != nil {
		watcher.SetOnReload(func(next config.Config, err error) {
			if err != nil {
				log.Error().Err(err).Msg("config reload failed")
				return
			}
			next = config.ApplyDefaults(next)
			if err := catalog.Replace(next.Models); err != nil {
				log.Error().Err(err).Msg("catalog reload rejected")
				return
			}
			log.Info().Int("models", catalog.Len()).Msg("catalog reloaded")
		})
	}

	store, err := analytics.NewStore(cfg.DataDir, log.With().Str("component", "analytics").Logger())
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to open interaction log")
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	if cfg.CORS.Enabled {
		httpapi.SetCORSOptions(true, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(eng, store)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("backend", *backendKind).
			Int("models", catalog.Len()).
			Str("log_path", store.Path()).
			Msg("articled listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
}
