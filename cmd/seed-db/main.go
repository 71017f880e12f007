package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coffee-shop/internal/domain/account"
	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/internal/storage/postgres"
)

func main() {
	var (
		databaseURL   string
		productsFile  string
		concurrency   int
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzipped (.gz)")
	flag.IntVar(&concurrency, "concurrency", 4, "parallel product upserts")
	flag.StringVar(&adminPassword, "hash-admin-password", "", "print the bcrypt hash of this password for COFFEE_ADMIN_PASSWORD_HASH and exit")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if adminPassword != "" {
		hash, err := account.HashPassword(adminPassword)
		if err != nil {
			lg.Fatal("Hash admin password", zap.Error(err))
		}
		_, _ = io.WriteString(os.Stdout, hash+"\n")
		return
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, concurrency); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string, concurrency int) error {
	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, p := range products {
		g.Go(func() error {
			if err := repo.Upsert(gctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("Products seeded", zap.Int("count", len(products)))
	return nil
}

func readProducts(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decodeProducts(data)
}

func decodeProducts(data []byte) ([]product.Product, error) {
	var products []product.Product
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				v, err := d.Str()
				p.ID = v
				return err
			case "name":
				v, err := d.Str()
				p.Name = v
				return err
			case "description":
				v, err := d.Str()
				p.Description = v
				return err
			case "category":
				v, err := d.Str()
				p.Category = v
				return err
			case "imageUrl":
				v, err := d.Str()
				p.ImageURL = v
				return err
			case "price":
				return decodePrice(d, &p.Price)
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		if p.ID == "" {
			return errors.New("product without id")
		}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return products, nil
}

// decodePrice accepts both "120" and 120.
func decodePrice(d *jx.Decoder, dst *decimal.Decimal) error {
	var raw string
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return err
		}
		raw = v
	default:
		v, err := d.Num()
		if err != nil {
			return err
		}
		raw = v.String()
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.Wrapf(err, "price %q", raw)
	}
	if price.IsNegative() {
		return errors.Errorf("negative price %s", raw)
	}
	*dst = price
	return nil
}
