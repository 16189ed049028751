package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/menu"
	"github.com/noah-isme/backend-resto/internal/store"
	"github.com/noah-isme/backend-resto/internal/store/pgstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}
	if err := pgstore.Migrate(pool); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	repo := pgstore.New(pool)
	now := time.Now().UTC()
	seedMenu(ctx, repo, now)
	seedPresets(ctx, repo, now)

	log.Println("Seeding completed successfully!")
}

func seedMenu(ctx context.Context, repo *pgstore.Store, now time.Time) {
	categories := []menu.Category{
		{ID: "cat-starters", Name: "Starters"},
		{ID: "cat-mains", Name: "Mains"},
		{ID: "cat-drinks", Name: "Drinks"},
		{ID: "cat-desserts", Name: "Desserts"},
	}
	log.Println("Seeding categories...")
	for _, c := range categories {
		if err := repo.SaveCategory(ctx, c); err != nil {
			log.Fatalf("Failed to seed category %s: %v", c.Name, err)
		}
	}

	items := []menu.Item{
		{ID: "item-pupusa-queso", Name: "Pupusa de queso", Price: 1.00, CategoryID: "cat-starters"},
		{ID: "item-pupusa-revuelta", Name: "Pupusa revuelta", Price: 1.25, CategoryID: "cat-starters"},
		{ID: "item-yuca-frita", Name: "Yuca frita", Price: 3.50, CategoryID: "cat-starters"},
		{ID: "item-carne-asada", Name: "Carne asada", Price: 12.00, CategoryID: "cat-mains"},
		{ID: "item-pollo-encebollado", Name: "Pollo encebollado", Price: 9.50, CategoryID: "cat-mains"},
		{ID: "item-sopa-gallina", Name: "Sopa de gallina", Price: 7.00, CategoryID: "cat-mains"},
		{ID: "item-horchata", Name: "Horchata", Price: 2.00, CategoryID: "cat-drinks"},
		{ID: "item-cafe", Name: "Cafe de olla", Price: 1.50, CategoryID: "cat-drinks"},
		{ID: "item-cerveza", Name: "Cerveza", Price: 2.75, CategoryID: "cat-drinks"},
		{ID: "item-flan", Name: "Flan", Price: 3.00, CategoryID: "cat-desserts"},
		{ID: "item-quesadilla", Name: "Quesadilla salvadorena", Price: 2.50, CategoryID: "cat-desserts"},
	}
	log.Println("Seeding menu items...")
	for _, it := range items {
		it.Available = true
		it.UpdatedAt = now
		if err := repo.SaveItem(ctx, it); err != nil {
			log.Fatalf("Failed to seed item %s: %v", it.Name, err)
		}
	}
}

func seedPresets(ctx context.Context, repo *pgstore.Store, now time.Time) {
	presets := []discount.Preset{
		{ID: "preset-staff", Name: "Staff meal", Percentage: 50, Description: "Employees on shift"},
		{ID: "preset-happy-hour", Name: "Happy hour", Percentage: 20, CouponCode: "HAPPY20", CategoryIDs: []string{"cat-drinks"}},
		{ID: "preset-senior", Name: "Senior citizen", Percentage: 10, Description: "Requires ID"},
		{ID: "preset-pupusa-night", Name: "Pupusa night", Percentage: 15, CouponCode: "PUPUSA15", MenuItemIDs: []string{"item-pupusa-queso", "item-pupusa-revuelta"}},
	}
	log.Println("Seeding discount presets...")
	for _, p := range presets {
		if err := p.Check(); err != nil {
			log.Fatalf("Invalid preset %s: %v", p.Name, err)
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		err := repo.CreatePreset(ctx, p)
		if errors.Is(err, store.ErrConflict) {
			err = repo.UpdatePreset(ctx, p)
		}
		if err != nil {
			log.Fatalf("Failed to seed preset %s: %v", p.Name, err)
		}
	}
}
