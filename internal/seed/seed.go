// Package seed fills a development database with fixture and generated
// users and listings.
package seed

import (
	"context"
	"fmt"
	"time"

	"billboard/internal/middleware"
	"billboard/internal/models"
	"billboard/internal/repository"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	Users           int
	ListingsPerUser int
	Clean           bool
	// Seed fixes the generated data; zero picks a random seed.
	Seed     int64
	Fixtures *Fixtures
}

// Summary reports what a run created.
type Summary struct {
	Users      int
	Listings   int
	ListingIDs []uint
}

// Seeder writes seed data through the repositories so counters and cache
// invalidation behave as in production.
type Seeder struct {
	db       *gorm.DB
	users    repository.UserRepository
	listings repository.ListingRepository
	now      func() time.Time
}

func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{
		db:       db,
		users:    repository.NewUserRepository(db),
		listings: repository.NewListingRepository(db),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run seeds fixtures first, then generated users with their listings.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Clean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("clear: %w", err)
		}
	}

	summary := &Summary{}
	if opts.Fixtures != nil {
		if err := s.applyFixtures(ctx, opts.Fixtures, summary); err != nil {
			return nil, fmt.Errorf("fixtures: %w", err)
		}
	}

	factory := NewFactory(opts.Seed, s.now())
	for i := 1; i <= opts.Users; i++ {
		user := factory.BuildUser(i)
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user %s: %w", user.Username, err)
		}
		summary.Users++

		batch := make([]*models.Listing, 0, opts.ListingsPerUser)
		for j := 0; j < opts.ListingsPerUser; j++ {
			batch = append(batch, factory.BuildListing(user.ID))
		}
		if err := s.listings.CreateBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("create listings for %s: %w", user.Username, err)
		}
		for _, l := range batch {
			summary.ListingIDs = append(summary.ListingIDs, l.ID)
		}
		summary.Listings += len(batch)
	}

	middleware.Logger.InfoContext(ctx, "seeding completed",
		"users", summary.Users,
		"listings", summary.Listings,
	)
	return summary, nil
}

func (s *Seeder) applyFixtures(ctx context.Context, f *Fixtures, summary *Summary) error {
	owners := make(map[string]uint, len(f.Users))
	for _, uf := range f.Users {
		user := &models.User{Username: uf.Username, Email: uf.Email}
		if err := s.users.Create(ctx, user); err != nil {
			return fmt.Errorf("create user %s: %w", uf.Username, err)
		}
		owners[uf.Username] = user.ID
		summary.Users++
	}

	for _, lf := range f.Listings {
		l := lf.toListing(owners[lf.Owner])
		if err := s.listings.Create(ctx, l); err != nil {
			return fmt.Errorf("create listing %q: %w", lf.Title, err)
		}
		summary.ListingIDs = append(summary.ListingIDs, l.ID)
		summary.Listings++
	}
	return nil
}

// ClearAll deletes every row of the service's tables, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tables := []interface{}{
		&models.Comment{},
		&models.Invitation{},
		&models.Application{},
		&models.ListingLike{},
		&models.Listing{},
		&models.User{},
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(t).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
