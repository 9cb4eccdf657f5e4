package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/nikhilbhutani/speechstudio/internal/api"
	"github.com/nikhilbhutani/speechstudio/internal/audit"
	"github.com/nikhilbhutani/speechstudio/internal/cache"
	"github.com/nikhilbhutani/speechstudio/internal/config"
	"github.com/nikhilbhutani/speechstudio/internal/database"
	"github.com/nikhilbhutani/speechstudio/internal/draft"
	"github.com/nikhilbhutani/speechstudio/internal/form"
	"github.com/nikhilbhutani/speechstudio/internal/llm"
	"github.com/nikhilbhutani/speechstudio/internal/metrics"
	"github.com/nikhilbhutani/speechstudio/internal/profile"
	"github.com/nikhilbhutani/speechstudio/internal/queue"
	"github.com/nikhilbhutani/speechstudio/internal/storage"
	"github.com/nikhilbhutani/speechstudio/internal/synthesis"
	"github.com/nikhilbhutani/speechstudio/internal/voice"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.New()

	// Database connection (optional: history falls back to memory)
	var db *pgxpool.Pool
	var history audit.Recorder = audit.NewMemoryLog(1000)
	if database.Enabled(cfg.Database) {
		db, err = database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, keeping history in memory", "error", err)
		} else {
			defer db.Close()
			if err := migrate(ctx, db, cfg.Database); err != nil {
				slog.Warn("migrations failed, keeping history in memory", "error", err)
			} else {
				history = audit.NewService(db)
			}
		}
	}

	// Redis connection (optional: caches and session state fall back to memory)
	var rdb *redis.Client
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without shared cache", "error", err)
		client.Close()
	} else {
		rdb = client
		defer rdb.Close()
	}

	// Google Cloud Text-to-Speech
	var ttsOpts []option.ClientOption
	if cfg.TTS.CredentialsFile != "" {
		ttsOpts = append(ttsOpts, option.WithCredentialsFile(cfg.TTS.CredentialsFile))
	}
	tts, err := texttospeech.NewClient(ctx, ttsOpts...)
	if err != nil {
		slog.Error("failed to create text-to-speech client", "error", err)
		os.Exit(1)
	}
	defer tts.Close()

	profiles, err := profile.Load(cfg.TTS.ProfilesPath)
	if err != nil {
		slog.Error("failed to load audio profiles", "path", cfg.TTS.ProfilesPath, "error", err)
		os.Exit(1)
	}

	catalogOpts := []voice.Option{voice.WithFetchHook(m.ObserveCatalogFetch)}
	synthOpts := []synthesis.Option{synthesis.WithObserver(m.ObserveSynthesis)}
	var store form.Store = form.NewMemoryStore()
	if rdb != nil {
		c := cache.NewCache(rdb, "speechstudio")
		catalogOpts = append(catalogOpts, voice.WithStore(c, cfg.TTS.VoiceCacheTTL))
		synthOpts = append(synthOpts, synthesis.WithCache(cache.NewAudioCache(c, cfg.TTS.AudioCacheTTL)))
		store = form.NewRedisStore(c, cfg.Session.TTL)
	} else {
		synthOpts = append(synthOpts, synthesis.WithCache(synthesis.NewMemoryCache(256)))
	}
	voices := voice.NewCatalog(voice.NewGoogleLister(tts), catalogOpts...)
	synth := synthesis.NewClient(synthesis.NewGoogleProvider(tts), synthOpts...)

	formOpts := []form.Option{
		form.WithRecorder(history),
		form.WithOutcomeHook(m.ObserveOutcome),
	}

	// Speech drafting (optional)
	if cfg.LLM.GeminiKey != "" || cfg.LLM.OpenAIKey != "" || cfg.LLM.AnthropicKey != "" {
		gw, err := llm.NewGateway(ctx, cfg.LLM)
		if err != nil {
			slog.Warn("speech drafting disabled", "error", err)
		} else {
			defer gw.Close()
			formOpts = append(formOpts, form.WithDrafter(draft.NewClient(gw, cfg.Draft, draft.WithUsageHook(m.ObserveDraft))))
		}
	}

	if cfg.ArchiveEnabled() {
		objects := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey)
		formOpts = append(formOpts, form.WithArchiver(storage.NewArchive(objects, cfg.Storage.Bucket)))
	}

	if rdb != nil {
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		formOpts = append(formOpts, form.WithPurgeScheduler(qc))
	}

	ctrl := form.NewController(voices, profiles, synth, store, form.Config{
		MediaDir:        cfg.Media.Dir,
		MediaTTL:        cfg.Media.TTL,
		DefaultLanguage: cfg.TTS.DefaultLanguage,
	}, formOpts...)

	// Warm the catalog; a failure here is reported on the form.
	if _, err := voices.ListVoices(ctx); err != nil {
		slog.Warn("initial voice fetch failed", "error", err)
	}

	// Setup router
	router := api.NewRouter(cfg, api.Deps{
		DB:       db,
		Redis:    rdb,
		Form:     ctrl,
		Voices:   voices,
		Profiles: profiles,
		History:  history,
		Metrics:  m,
	})
	handler := router.Setup(ctx)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	stop()
	slog.Info("server stopped")
}

func migrate(ctx context.Context, db *pgxpool.Pool, cfg config.DatabaseConfig) error {
	fsys, err := database.MigrationsFS(cfg.MigrationsPath)
	if err != nil {
		return err
	}
	return database.RunMigrations(ctx, db, fsys)
}
