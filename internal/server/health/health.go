// Package health exposes the readiness probe shared by the HTTP and gRPC servers.
package health

import (
	"context"
	"time"

	"go.uber.org/fx"

	repo "github.com/Additional-Code/bistro/internal/repository/order"
)

// Check reports whether the service can reach its backing store.
type Check func(ctx context.Context) error

// Module provides a Check backed by the order repository.
var Module = fx.Provide(func(r *repo.Repository) Check { return r.Ping })

// Probe runs check with timeout applied.
func Probe(ctx context.Context, check Check, timeout time.Duration) error {
	if check == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return check(ctx)
}
