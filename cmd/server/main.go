package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/lumenforge/entitystream/internal/auth"
	"github.com/lumenforge/entitystream/internal/broker"
	"github.com/lumenforge/entitystream/internal/config"
	"github.com/lumenforge/entitystream/internal/events"
	mw "github.com/lumenforge/entitystream/internal/middleware"
	"github.com/lumenforge/entitystream/internal/streaming"
)

func main() {
	cfg := config.Load()

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Streaming backbone
	var (
		msgBroker broker.MessageBroker
		registry  *streaming.Registry
	)
	if cfg.EnableStreaming {
		b, err := broker.NewBroker(cfg)
		if err != nil {
			log.Printf("WARNING: broker setup failed: %v (streaming disabled)", err)
		} else {
			msgBroker = b
			defer msgBroker.Close() //nolint:errcheck // best-effort cleanup on shutdown
			registry = streaming.NewRegistry(msgBroker)
			log.Println("Streaming system initialized")
		}
	} else {
		log.Println("Streaming disabled by configuration")
	}

	// Router
	r := mux.NewRouter()

	// Rate limiting: 100 req/s per IP with burst of 200
	r.Use(mw.RateLimitMiddleware(100, 200))

	// Health check (no auth)
	r.HandleFunc("/healthz", healthzHandler).Methods("GET")

	if registry != nil {
		// Mutation ingest (protected, tighter rate limit)
		publisher := events.NewPublisher(msgBroker, cfg.StreamableSet())
		eventHandlers := events.NewHandlers(publisher)

		protected := r.PathPrefix("").Subrouter()
		protected.Use(mw.StrictRateLimitMiddleware(20, 40))
		protected.Use(mw.AuthMiddleware(jwtService))
		eventHandlers.RegisterRoutes(protected)

		// WebSocket (auth handled inside handler, before upgrade)
		wsHandler := streaming.NewWSHandler(registry, msgBroker, jwtService)
		wsHandler.RegisterRoutes(r)
	}

	// HTTP Server — CORS wraps the entire router so OPTIONS preflight
	// requests are handled before mux routing (which would 404 on OPTIONS).
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        corsMiddleware(r),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}

	origins := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		origins[strings.TrimSpace(o)] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(origins) == 1 {
			// Single origin mode: always set it (for dev convenience)
			for o := range origins {
				w.Header().Set("Access-Control-Allow-Origin", o)
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
