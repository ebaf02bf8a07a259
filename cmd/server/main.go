package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/paperleague/league-engine/internal/assets"
	"github.com/paperleague/league-engine/internal/draft"
	"github.com/paperleague/league-engine/internal/httpapi"
	"github.com/paperleague/league-engine/internal/learn"
	"github.com/paperleague/league-engine/internal/league"
	"github.com/paperleague/league-engine/internal/matchups"
	"github.com/paperleague/league-engine/internal/metrics"
	"github.com/paperleague/league-engine/internal/notify"
	"github.com/paperleague/league-engine/internal/offers"
	"github.com/paperleague/league-engine/internal/quotes"
	"github.com/paperleague/league-engine/internal/store"
	"github.com/paperleague/league-engine/internal/trade"
	"github.com/paperleague/league-engine/internal/valuation"
	"github.com/paperleague/league-engine/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hub := ws.NewHub()
	go hub.Run()

	// --- Services ---
	engine := valuation.NewEngine(st)
	tradeSvc := trade.NewService(st, engine, hub)
	draftSvc := draft.NewService(st, hub)
	leagueSvc := league.NewService(st)
	learnSvc := learn.NewService(st)
	assetSvc := assets.NewService(st)
	matchupSvc := matchups.NewService(st)
	offerSvc := offers.NewService(st, engine)
	notifySvc := notify.NewService(st)

	quoteClient := quotes.NewClient(
		os.Getenv("QUOTE_API_URL"),
		os.Getenv("QUOTE_API_KEY"),
	)
	refresher := quotes.NewRefresher(st, engine, quoteClient, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"league-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time league events.
		r.Get("/ws", hub.HandleWS)

		// Account creation is the only route without an identity.
		r.Post("/users", learnSvc.Register)

		r.Group(func(r chi.Router) {
			r.Use(httpapi.Identity)

			// Asset catalog.
			r.Get("/assets", assetSvc.List)
			r.Post("/assets", assetSvc.Create)
			r.Get("/assets/{ticker}", assetSvc.Get)
			r.Post("/assets/refresh", refresher.HandleRefreshAll)
			r.Post("/assets/{ticker}/refresh", refresher.HandleRefreshOne)

			// Lessons.
			r.Post("/lessons/complete", learnSvc.CompleteLesson)
			r.Get("/lessons/progress", learnSvc.Progress)

			// Leagues.
			r.Get("/leagues", leagueSvc.List)
			r.Post("/leagues", leagueSvc.Create)
			r.Post("/leagues/join", leagueSvc.JoinByCode)
			r.Get("/leagues/{groupID}", leagueSvc.Get)
			r.Post("/leagues/{groupID}/join", leagueSvc.Join)
			r.Delete("/leagues/{groupID}/leave", leagueSvc.Leave)
			r.Get("/leagues/{groupID}/standings", leagueSvc.Standings)

			// Head-to-head matchups.
			r.Get("/leagues/{groupID}/matchup/current", matchupSvc.Current)
			r.Get("/leagues/{groupID}/matchup/week/{week}", matchupSvc.ByWeek)
			r.Get("/leagues/{groupID}/matchups", matchupSvc.List)

			// Trade offers and waivers.
			r.Post("/leagues/{groupID}/offers", offerSvc.Create)
			r.Get("/leagues/{groupID}/offers", offerSvc.List)
			r.Post("/offers/{offerID}/accept", offerSvc.Accept)
			r.Post("/offers/{offerID}/reject", offerSvc.Reject)
			r.Post("/offers/{offerID}/cancel", offerSvc.Cancel)
			r.Post("/leagues/{groupID}/waivers", offerSvc.SubmitWaiver)
			r.Get("/leagues/{groupID}/waivers", offerSvc.ListWaivers)

			// Notifications.
			r.Get("/notifications", notifySvc.List)
			r.Post("/notifications/{notificationID}/read", notifySvc.MarkRead)

			// Draft.
			r.Get("/leagues/{groupID}/draft", draftSvc.GetState)
			r.Post("/leagues/{groupID}/draft/start", draftSvc.Start)
			r.Post("/leagues/{groupID}/draft/pick", draftSvc.Pick)
			r.Get("/leagues/{groupID}/draft/assets", draftSvc.AvailableAssets)

			// Trading and portfolios.
			r.Post("/leagues/{groupID}/buy", tradeSvc.Buy)
			r.Post("/leagues/{groupID}/sell", tradeSvc.Sell)
			r.Get("/leagues/{groupID}/portfolio", tradeSvc.GetPortfolio)
			r.Post("/leagues/{groupID}/allocate", tradeSvc.Allocate)
			r.Put("/leagues/{groupID}/lineup", tradeSvc.SetLineup)
			r.Post("/portfolios/recalculate", tradeSvc.Recalculate)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("league-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down league-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("league-engine stopped")
}
