package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/config"
	"github.com/RMahshie/resonara/internal/instrument"
	"github.com/RMahshie/resonara/internal/instrument/scpi"
	"github.com/RMahshie/resonara/internal/instrument/sim"
	"github.com/RMahshie/resonara/internal/instrument/transport"
	"github.com/RMahshie/resonara/internal/repository"
	"github.com/RMahshie/resonara/internal/repository/memory"
	"github.com/RMahshie/resonara/internal/repository/postgres"
	"github.com/RMahshie/resonara/internal/storage"
)

// openInstrument connects the configured driver. The returned closer
// releases the transport.
func openInstrument(ctx context.Context, cfg config.InstrumentConfig) (instrument.Driver, io.Closer, error) {
	if cfg.Driver == "sim" {
		log.Info().Int64("seed", cfg.Seed).Msg("Using simulated VNA")
		return sim.New(cfg.Seed), io.NopCloser(nil), nil
	}

	dialect, err := scpi.DialectByName(cfg.Dialect)
	if err != nil {
		return nil, nil, err
	}

	var conn interface {
		scpi.Conn
		io.Closer
	}
	switch cfg.Driver {
	case "prologix":
		conn, err = transport.OpenPrologix(cfg.Address, cfg.GPIBAddress)
	case "tcp":
		conn, err = transport.DialSocket(ctx, cfg.Address, cfg.Timeout)
	default:
		err = fmt.Errorf("unknown instrument driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, nil, err
	}

	vna := scpi.New(conn, dialect, cfg.Channel)
	idn, err := vna.Identify(ctx)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to identify instrument: %w", err)
	}
	log.Info().Str("idn", idn).Str("dialect", dialect.Name).Str("address", cfg.Address).Msg("Connected to VNA")
	return vna, conn, nil
}

// openRepository connects the run index, in memory when no database is set.
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (repository.RunRepository, io.Closer, error) {
	if cfg.URL == "" {
		log.Warn().Msg("DATABASE_URL not set, keeping run index in memory")
		return memory.NewRunRepository(), io.NopCloser(nil), nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := postgres.NewPostgresRunRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info().Msg("Connected to database")
	return repo, db, nil
}

// openStore returns the artifact store, or nil when mirroring is disabled.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	case "minio":
		store, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
