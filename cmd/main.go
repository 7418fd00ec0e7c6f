package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/umldraft/umlbot/internal/cache"
	"github.com/umldraft/umlbot/internal/config"
	"github.com/umldraft/umlbot/internal/handler"
	"github.com/umldraft/umlbot/internal/llm"
	"github.com/umldraft/umlbot/internal/metrics"
	appmw "github.com/umldraft/umlbot/internal/middleware"
	"github.com/umldraft/umlbot/internal/prompt"
	"github.com/umldraft/umlbot/internal/render"
	"github.com/umldraft/umlbot/internal/service"
	"github.com/umldraft/umlbot/internal/session"

	_ "github.com/umldraft/umlbot/docs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.Default()

	llmClient, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		logger.Fatalf("llm client error: %v", err)
	}

	template := prompt.Default()
	if cfg.Prompt.TemplatePath != "" {
		template, err = prompt.Load(cfg.Prompt.TemplatePath)
		if err != nil {
			logger.Fatalf("prompt template error: %v", err)
		}
		logger.Printf("loaded prompt template from %s\n", cfg.Prompt.TemplatePath)
	}

	sessions := session.NewStore(session.StoreConfig{
		MaxSessions: cfg.Session.MaxSessions,
		TTL:         cfg.Session.TTL,
	})

	diagramService := service.NewDiagramService(
		logger,
		llmClient,
		render.NewClient(cfg.PlantUML),
		template,
		sessions,
		cfg.Session.HistoryLimit,
	)

	if cfg.CacheEnable {
		redisCache := cache.NewRedisCache(cfg.Redis)
		diagramService.SetCacheClient(redisCache)
		logger.Println("set redis as generation cache")
	}

	h := handler.NewDiagramHandler(diagramService)

	r := chi.NewRouter()
	r.Use([]func(http.Handler) http.Handler{
		middleware.Logger,
		middleware.Recoverer,
		middleware.Throttle(cfg.Server.ThrottleLimit),
		middleware.Timeout(cfg.Server.Timeout),
		appmw.CORS(cfg.CORSOrigins),
		metrics.Middleware,
	}...)

	r.Post("/api/generate", h.Generate)
	r.Post("/api/render", h.Render)
	r.Post("/api/sessions", h.CreateSession)
	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Put("/diagram", h.UpdateDiagram)
		r.Post("/chat", h.Chat)
		r.Post("/chat/stream", h.ChatStream)
	})
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Printf("server started :%s\n", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}
	logger.Println("server stopped")
}
