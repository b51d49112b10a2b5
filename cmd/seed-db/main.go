// Command seed-db loads the product catalog and an admin account into the
// database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/repository"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, description, image)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			image = EXCLUDED.image`

	upsertVariantSQL = `INSERT INTO weight_variants (product_id, weight, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, weight) DO UPDATE SET price = EXCLUDED.price`

	syncProductSequenceSQL = `SELECT setval(pg_get_serial_sequence('products', 'id'),
		(SELECT COALESCE(max(id), 1) FROM products))`

	upsertAdminSQL = `INSERT INTO customers (first_name, last_name, email, password_hash, role)
		VALUES ('Admin', '', $1, $2, 'admin')
		ON CONFLICT ((lower(email))) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = 'admin'
		RETURNING id`
)

type productJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Variants    []struct {
		Weight string          `json:"weight"`
		Price  decimal.Decimal `json:"price"`
	} `json:"variants"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		adminEmail    string
		adminPassword string
		bcryptCost    int
		workers       int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&adminEmail, "admin-email", "admin@epicerie.local", "email of the seeded admin account")
	flag.StringVar(&adminPassword, "admin-password", "", "admin password (or EPICERIE_SEED_ADMIN_PASSWORD env); empty skips the admin")
	flag.IntVar(&bcryptCost, "bcrypt-cost", 10, "bcrypt cost for the admin password")
	flag.IntVar(&workers, "workers", 4, "concurrent product upserts")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("EPICERIE_SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, workers); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	if adminPassword != "" {
		if err := seedAdmin(ctx, lg, databaseURL, adminEmail, adminPassword, bcryptCost); err != nil {
			lg.Fatal("Seed admin failed", zap.Error(err))
		}
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string, workers int) error {
	lg.Info("Running migrations")
	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	products, err := readProducts(productsFile)
	if err != nil {
		return err
	}
	lg.Info("Upserting products", zap.Int("count", len(products)), zap.String("path", productsFile))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, p := range products {
		g.Go(func() error {
			if err := upsertProduct(gctx, pool, p); err != nil {
				return errors.Wrapf(err, "upsert product %d", p.ID)
			}
			lg.Debug("Upserted product", zap.Int64("id", p.ID), zap.Int("variants", len(p.Variants)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, syncProductSequenceSQL); err != nil {
		return errors.Wrap(err, "sync product id sequence")
	}
	return nil
}

func readProducts(path string) ([]productJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	for _, p := range products {
		if p.ID <= 0 || p.Name == "" {
			return nil, errors.Errorf("product %q: id and name are required", p.Name)
		}
		for _, v := range p.Variants {
			if v.Weight == "" || v.Price.IsNegative() {
				return nil, errors.Errorf("product %d: invalid variant %q", p.ID, v.Weight)
			}
		}
	}
	return products, nil
}

// upsertProduct writes a product and its variants in one transaction.
func upsertProduct(ctx context.Context, pool *pgxpool.Pool, p productJSON) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Description, p.Image); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, v := range p.Variants {
			batch.Queue(upsertVariantSQL, p.ID, v.Weight, v.Price)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func seedAdmin(ctx context.Context, lg *zap.Logger, databaseURL, email, password string, cost int) error {
	hash, err := auth.NewHasher(cost).Hash(password)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer func() { _ = conn.Close(context.Background()) }()

	var id int64
	if err := conn.QueryRow(ctx, upsertAdminSQL, email, hash).Scan(&id); err != nil {
		return errors.Wrap(err, "upsert admin")
	}
	lg.Info("Upserted admin", zap.Int64("id", id), zap.String("email", email))
	return nil
}
