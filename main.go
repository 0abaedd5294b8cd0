package main

import (
	"context"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"math"
	"os"
	"os/signal"
	"snapgram/authoring"
	"snapgram/config"
	"snapgram/engagement"
	"snapgram/events"
	"snapgram/feeds"
	"snapgram/graph"
	"snapgram/media"
	"snapgram/server"
	"snapgram/session"
	"snapgram/social"
	"snapgram/storage"
	"snapgram/storage/cache"
	"snapgram/storage/memory"
	"snapgram/storage/postgres"
	"snapgram/tasks"
	"snapgram/utils"
	"syscall"
	"time"
)

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage == "memory" {
		log.Warn("Using in-memory storage, data will not survive a restart")
		return memory.New(), nil
	}

	store, err := postgres.New(ctx, cfg.DatabaseURL(), int32(cfg.DBMaxConns))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func runBackgroundTasks(ctx context.Context, reconciler *tasks.Reconciler) {
	// Follow counter reconciliation
	go utils.Recoverer(math.MaxInt, "reconciler", func() {
		reconciler.Run(ctx)
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	log.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Error opening storage: %v", err)
	}
	defer store.Close()

	var (
		tracker      graph.CounterTracker
		dirty        tasks.DirtySource
		profileCache social.ProfileCache
	)
	if cfg.RedisHost != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: "", // no password set
			DB:       0,  // use default DB
		})
		defer redisClient.Close()

		usersCache := cache.NewUsersCache(redisClient)
		tracker = usersCache
		dirty = usersCache
		profileCache = cache.NewProfilesCache(redisClient, cfg.ProfilesCacheExpiration)
	}

	hub := events.NewHub()
	defer hub.Close()
	publishers := []events.Publisher{hub}
	if cfg.NatsURL != "" {
		natsPublisher, err := events.NewNatsPublisher(cfg.NatsURL, cfg.NatsSubject)
		if err != nil {
			log.Fatalf("Error connecting to NATS: %v", err)
		}
		defer natsPublisher.Close()
		publishers = append(publishers, natsPublisher)
	}
	bus := events.NewBus(publishers...)

	objects, err := media.NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		log.Fatalf("Error opening media directory: %v", err)
	}

	graphManager := graph.NewManager(store, bus, tracker)
	engagementManager := engagement.NewManager(store, bus)
	authoringService := authoring.NewService(store, objects, bus)
	paginator := feeds.NewPaginator(store, cfg.FeedPageSize)
	facade := social.NewFacade(store, graphManager, engagementManager, paginator, profileCache, cfg.FeedPageSize)
	bus.Subscribe(facade.HandleEvent)

	// Run background tasks
	reconciler := tasks.NewReconciler(
		graphManager,
		store,
		dirty,
		cfg.ReconcileInterval,
		cfg.ReconcileFullEvery,
		cfg.ReconcileBatch,
	)
	runBackgroundTasks(ctx, reconciler)

	s := server.NewServer(
		cfg.Port,
		facade,
		graphManager,
		engagementManager,
		authoringService,
		session.NewJWTSession(cfg.SessionSecret, cfg.SessionTTL),
		hub,
		objects,
	)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error shutting down server: %v", err)
		}
	}()

	if err := s.Run(); err != nil {
		log.Errorf("Error running server: %v", err)
	}
}
