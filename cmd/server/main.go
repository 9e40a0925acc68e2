// Command server runs the billboard API together with its background workers.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billboard/internal/cache"
	"billboard/internal/config"
	"billboard/internal/database"
	"billboard/internal/email"
	"billboard/internal/embedding"
	"billboard/internal/middleware"
	"billboard/internal/observability"
	"billboard/internal/server"
	"billboard/internal/storage"
	"billboard/internal/tasks"
	"billboard/internal/vectorindex"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// @title Billboard API
// @version 1.0
// @description Housing marketplace: listings, applications, invitations, comments and realtime notifications.

// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.Logger = middleware.NewLogger(cfg.Env)

	shutdownTracing, err := observability.InitTracing(context.Background(),
		observability.TracingFromConfig(cfg, "billboard-api", "1.0"))
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Redis is optional: without it the cache, rate limits, tickets and
	// cross-process fan-out are off and tasks run in-process.
	if cfg.RedisURL != "" {
		cache.InitRedis(cfg.RedisURL)
	}
	rdb := cache.GetClient()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, err := newVectorIndex(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to prepare vector index: %v", err)
	}

	var uploader *storage.Uploader
	if cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to configure image storage: %v", err)
		}
		uploader = storage.NewUploader(store, cfg)
	}

	deps := server.Deps{
		DB:         db,
		Redis:      rdb,
		Embeddings: embedding.NewGateway(embedding.NewEmbedder(cfg)),
		Index:      index,
		Uploader:   uploader,
	}

	var (
		localQueue  *tasks.LocalQueue
		asynqClient *asynq.Client
		redisOpt    asynq.RedisConnOpt
	)
	if rdb != nil {
		redisOpt, err = tasks.RedisOpt(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to configure task queue: %v", err)
		}
		asynqClient = asynq.NewClient(redisOpt)
		deps.Tasks = tasks.NewClient(asynqClient)
	} else {
		// The handler needs the services, which need the queue.
		localQueue = tasks.NewLocalQueue(nil, 0, cfg.WorkerConcurrency)
		deps.Tasks = localQueue
	}

	srv, err := server.NewServerWithDeps(cfg, deps)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	processor := tasks.NewTaskProcessor(
		srv.Similarity(),
		srv.Listings(),
		srv.Invitations(),
		email.NewMailer(email.NewSender(cfg), cfg.SMTPFrom),
	)
	mux := tasks.NewServeMux(processor)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if localQueue != nil {
		localQueue.SetHandler(mux)
		if err := localQueue.Schedule(tasks.PeriodicTasks(cfg)); err != nil {
			log.Fatalf("Failed to schedule maintenance tasks: %v", err)
		}
		g.Go(func() error { return localQueue.Run(gctx) })
	} else {
		worker := tasks.NewServer(redisOpt, cfg)
		if err := worker.Start(mux); err != nil {
			log.Fatalf("Failed to start task worker: %v", err)
		}
		scheduler, err := tasks.NewScheduler(redisOpt, cfg)
		if err != nil {
			log.Fatalf("Failed to create task scheduler: %v", err)
		}
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start task scheduler: %v", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			scheduler.Shutdown()
			worker.Shutdown()
			return asynqClient.Close()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		middleware.Logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
}

// newVectorIndex picks Qdrant when VECTOR_INDEX_URL is set, the in-process
// index otherwise.
func newVectorIndex(ctx context.Context, cfg *config.Config) (*vectorindex.Adapter, error) {
	if cfg.VectorIndexURL == "" {
		return vectorindex.NewAdapter(vectorindex.NewMemoryIndex(), cfg.VectorIndexTimeout()), nil
	}

	qdrant := vectorindex.NewQdrantIndex(cfg.VectorIndexURL, cfg.VectorIndexCollection, cfg.VectorIndexAPIKey)
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := qdrant.EnsureCollection(ensureCtx, cfg.EmbeddingDimensions); err != nil {
		return nil, err
	}
	return vectorindex.NewAdapter(qdrant, cfg.VectorIndexTimeout()), nil
}
