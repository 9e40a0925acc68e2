// Command seed fills the database with fixture and generated marketplace data.
package main

import (
	"context"
	"flag"
	"log"

	"billboard/internal/config"
	"billboard/internal/database"
	"billboard/internal/embedding"
	"billboard/internal/middleware"
	"billboard/internal/repository"
	"billboard/internal/seed"
	"billboard/internal/service"
	"billboard/internal/vectorindex"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of generated users")
	listingsPerUser := flag.Int("listings", 3, "Listings per generated user")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	randSeed := flag.Int64("seed", 0, "Seed for generated data (0 = random)")
	fixturesPath := flag.String("fixtures", "", "YAML fixtures file (default: built-in fixtures)")
	index := flag.Bool("index", false, "Embed seeded listings into the vector index at VECTOR_INDEX_URL")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Printf("Target: %d users x %d listings, clean=%v\n", *numUsers, *listingsPerUser, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.Logger = middleware.NewLogger(cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var fixtures *seed.Fixtures
	if *fixturesPath != "" {
		fixtures, err = seed.LoadFixtures(*fixturesPath)
	} else {
		fixtures, err = seed.DefaultFixtures()
	}
	if err != nil {
		log.Fatalf("❌ Fixtures: %v", err)
	}

	ctx := context.Background()
	summary, err := seed.NewSeeder(db).Run(ctx, seed.Options{
		Users:           *numUsers,
		ListingsPerUser: *listingsPerUser,
		Clean:           *shouldClean,
		Seed:            *randSeed,
		Fixtures:        fixtures,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}
	log.Printf("Created %d users and %d listings\n", summary.Users, summary.Listings)

	if *index {
		if cfg.VectorIndexURL == "" {
			log.Fatalf("❌ -index needs VECTOR_INDEX_URL")
		}
		qdrant := vectorindex.NewQdrantIndex(cfg.VectorIndexURL, cfg.VectorIndexCollection, cfg.VectorIndexAPIKey)
		if err := qdrant.EnsureCollection(ctx, cfg.EmbeddingDimensions); err != nil {
			log.Fatalf("❌ Vector index: %v", err)
		}
		similarity := service.NewSimilarityService(
			embedding.NewGateway(embedding.NewEmbedder(cfg)),
			vectorindex.NewAdapter(qdrant, cfg.VectorIndexTimeout()),
			repository.NewListingRepository(db),
		)

		indexed := 0
		for _, id := range summary.ListingIDs {
			if err := similarity.IndexListing(ctx, id); err != nil {
				log.Printf("skipping listing %d: %v", id, err)
				continue
			}
			indexed++
		}
		log.Printf("Indexed %d listings\n", indexed)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
}
