package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lpernett/godotenv"

	"github.com/Nomu-MDS/Nomu-Back/internal/application/services"
	"github.com/Nomu-MDS/Nomu-Back/internal/auth"
	"github.com/Nomu-MDS/Nomu-Back/internal/config"
	"github.com/Nomu-MDS/Nomu-Back/internal/infrastructure/database"
	"github.com/Nomu-MDS/Nomu-Back/internal/infrastructure/websocket"
	"github.com/Nomu-MDS/Nomu-Back/internal/interfaces/api"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWT.AccessSecret == "" {
		log.Fatal("NOMU_ACCESS_SECRET must be set")
	}

	db, err := database.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	resolver := auth.NewResolver(db, cfg.JWT.AccessSecret)
	conversationService := services.NewConversationService(db)
	chatService := services.NewChatService(db)
	hub := websocket.NewHub(conversationService, chatService)

	webSocketHandler := api.NewWebSocketHandler(hub, resolver, cfg.Websocket.AllowedOrigins)
	conversationHandler := api.NewConversationHandler(conversationService, chatService)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", webSocketHandler.ServeChatWs)
	conversationHandler.Register(mux, resolver.Middleware)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		observability.Logger().Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Logger().Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	observability.Logger().Info("server exited gracefully")
}
