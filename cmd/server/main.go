package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"trip-planner-service/internal/adapters/cache"
	"trip-planner-service/internal/adapters/directions"
	"trip-planner-service/internal/adapters/repositories"
	"trip-planner-service/internal/api"
	"trip-planner-service/internal/config"
	"trip-planner-service/internal/platform/db"
	"trip-planner-service/internal/ports"
	"trip-planner-service/internal/routing"
	"trip-planner-service/internal/schedule"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// main is the application composition root.
// It wires concrete adapters (postgres, redis, OSRM) behind ports and starts
// the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	osrmURL := config.Get("OSRM_BASE_URL", "https://router.project-osrm.org")
	redisAddr := os.Getenv("REDIS_ADDR")
	port := config.Get("PORT", "8080")

	sqlDB, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer sqlDB.Close()

	if err := repositories.InitSchema(sqlDB); err != nil {
		log.Fatal(err)
	}

	provider, err := directions.NewOSRMProvider(osrmURL)
	if err != nil {
		log.Fatal(err)
	}

	// The shared redis tier is optional; without it the edge cache still
	// memoizes in-process.
	var store ports.EdgeStore
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		store = cache.NewRedisEdgeStore(client)
		log.Printf("edge cache using shared redis tier addr=%s", redisAddr)
	}

	edgeCache := routing.NewEdgeCache(provider, store, routing.EdgeCacheConfig{
		TTL:           24 * time.Hour,
		MaxConcurrent: 5,
		LookupTimeout: 10 * time.Second,
	})

	destRepo := repositories.NewPostgresDestinationRepository(sqlDB)
	eventRepo := repositories.NewPostgresEventRepository(sqlDB)
	mutationRepo := repositories.NewPostgresMutationRepository(sqlDB)

	optimizer := routing.NewOptimizer(edgeCache, routing.OptimizerConfig{})
	planner := routing.NewPlanner(optimizer, destRepo, 30*time.Second)

	manager := schedule.NewManager(eventRepo, destRepo, edgeCache, edgeCache, planner.Invalidate)
	resolver := schedule.NewResolver(eventRepo)
	queue := schedule.NewSyncQueue(mutationRepo, eventRepo, resolver, manager)

	router := api.NewRouter(planner, manager, resolver, queue)

	// Timeouts are tuned for cold-cache route optimization (external API latency).
	log.Printf("Server listening addr=:%s", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}
