// Command api-server serves the coffee-shop storefront and admin API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	coffee "github.com/xenking/coffee-shop/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := coffee.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		return coffee.Run(ctx, lg, m, cfg)
	})
}
