package postgres

import (
	"context"
	"fmt"

	"github.com/teknowguy/autopilot-backend/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendPostgres, func(cfg kv.Config) (kv.Store, error) {
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres DSN is required when backend is 'postgres'")
		}
		if err := Migrate(cfg.PostgresDSN, "up"); err != nil {
			return nil, fmt.Errorf("failed to migrate kv schema: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
		defer cancel()
		return New(ctx, cfg.PostgresDSN)
	})
}
