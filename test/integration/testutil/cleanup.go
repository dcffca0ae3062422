//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table the tests write to.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"event_outbox",
		"login_attempts",
		"admin_users",
		"tickets",
		"purchases",
		"price_tiers",
		"prizes",
		"raffles",
		"accounts",
	}
	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
}
