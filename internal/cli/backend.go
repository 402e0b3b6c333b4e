package cli

import (
	"context"
	"errors"
	"os"

	documentstore "actarchive/internal/document/store"
	inventoryservice "actarchive/internal/inventory/service"
	inventorystore "actarchive/internal/inventory/store"
	"actarchive/internal/platform/postgres"
	reconservice "actarchive/internal/reconciliation/service"
)

var errNoDatabase = errors.New("database URL is required (--database-url or DATABASE_URL)")

func openPostgres(ctx context.Context, opts *RootOptions) (*Backend, error) {
	if opts.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	db, err := postgres.Open(ctx, opts.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log := opts.logger(os.Stderr)
	inventory := inventorystore.NewPostgres(db)
	return &Backend{
		Inventory:      inventoryservice.New(inventory, inventoryservice.WithLogger(log)),
		Reconciliation: reconservice.New(inventory, documentstore.NewPostgres(db), reconservice.WithLogger(log)),
		Close:          db.Close,
	}, nil
}
