package di

import (
	"context"
	"fmt"

	"github.com/grocery-storefront/api/internal/platform/config"
	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/repositories"
	firestoreRepo "github.com/grocery-storefront/api/internal/repositories/firestore"
	"github.com/grocery-storefront/api/internal/repositories/memory"
	"github.com/grocery-storefront/api/internal/repositories/postgres"
)

// OpenRegistry builds the repository registry selected by cfg.Store.Driver. provider is only
// consulted for the firestore driver and may be nil otherwise.
func OpenRegistry(ctx context.Context, cfg config.Config, provider *pfirestore.Provider) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFirestore:
		if provider == nil {
			return nil, fmt.Errorf("store driver %q requires a firestore provider", cfg.Store.Driver)
		}
		reg, err := firestoreRepo.NewRegistry(provider,
			firestoreRepo.WithTransactionPolicy(cfg.Orders.TxAttempts, cfg.Orders.TxTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	case config.StoreDriverPostgres:
		store, err := postgres.Open(ctx, cfg.Postgres, postgres.WithTxAttempts(cfg.Orders.TxAttempts))
		if err != nil {
			return nil, fmt.Errorf("build postgres registry: %w", err)
		}
		return store, nil
	case config.StoreDriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
