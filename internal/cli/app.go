package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"wedding-ops/internal/checkin"
	"wedding-ops/internal/config"
	"wedding-ops/internal/materialize"
	"wedding-ops/internal/seating"
	"wedding-ops/internal/storage"
)

// app is the set of services every command works against
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	store        storage.Store
	records      *storage.Records
	materializer *materialize.Materializer
	seating      *seating.Engine
	checkin      *checkin.Service
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StoreBackend == config.BackendFile {
		s, err := storage.NewFileStore(cfg.StoreFile)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s, err := storage.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newApp(opts *RootOptions) (*app, error) {
	store, err := openStore(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	records := storage.NewRecords(store)
	return &app{
		cfg:          opts.Config,
		logger:       opts.Logger,
		store:        store,
		records:      records,
		materializer: materialize.NewMaterializer(records, nil, nil, opts.Logger),
		seating:      seating.NewEngine(records, nil, opts.Logger),
		checkin:      checkin.NewService(records, nil, opts.Logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
