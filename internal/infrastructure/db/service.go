package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill"
	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	badgerdb "github.com/arkade-os/pegd/internal/infrastructure/db/badger"
	pgdb "github.com/arkade-os/pegd/internal/infrastructure/db/postgres"
	sqlitedb "github.com/arkade-os/pegd/internal/infrastructure/db/sqlite"
	watermilldb "github.com/arkade-os/pegd/internal/infrastructure/db/watermill"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var (
	supplyStoreTypes = map[string]func(...interface{}) (domain.SupplyRepository, error){
		"badger":   badgerdb.NewSupplyRepository,
		"sqlite":   sqlitedb.NewSupplyRepository,
		"postgres": pgdb.NewSupplyRepository,
	}
	utxoStoreTypes = map[string]func(...interface{}) (domain.UtxoRepository, error){
		"badger":   badgerdb.NewUtxoRepository,
		"sqlite":   sqlitedb.NewUtxoRepository,
		"postgres": pgdb.NewUtxoRepository,
	}
	attestationStoreTypes = map[string]func(...interface{}) (domain.AttestationRepository, error){
		"badger":   badgerdb.NewAttestationRepository,
		"sqlite":   sqlitedb.NewAttestationRepository,
		"postgres": pgdb.NewAttestationRepository,
	}
	redemptionStoreTypes = map[string]func(...interface{}) (domain.RedemptionRepository, error){
		"badger":   badgerdb.NewRedemptionRepository,
		"sqlite":   sqlitedb.NewRedemptionRepository,
		"postgres": pgdb.NewRedemptionRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore       domain.EventRepository
	supplyStore      domain.SupplyRepository
	utxoStore        domain.UtxoRepository
	attestationStore domain.AttestationRepository
	redemptionStore  domain.RedemptionRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	supplyStoreFactory, ok := supplyStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	utxoStoreFactory := utxoStoreTypes[config.DataStoreType]
	attestationStoreFactory := attestationStoreTypes[config.DataStoreType]
	redemptionStoreFactory := redemptionStoreTypes[config.DataStoreType]

	eventStore, err := newEventStore(config.EventStoreType, config.EventStoreConfig)
	if err != nil {
		return nil, err
	}

	var storeConfig []interface{}
	switch config.DataStoreType {
	case "badger":
		storeConfig = config.DataStoreConfig

	case "postgres":
		dsn, autoCreate, err := parsePostgresConfig(config.DataStoreConfig)
		if err != nil {
			return nil, err
		}

		db, err := pgdb.OpenDb(dsn, autoCreate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres db: %s", err)
		}

		pgDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres migration driver: %s", err)
		}

		source, err := iofs.New(pgMigration, "postgres/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed postgres migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "postgres", pgDriver)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres migration instance: %s", err)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run postgres migrations: %s", err)
		}

		storeConfig = []interface{}{db}

	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}

		source, err := iofs.New(migrations, "sqlite/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "pegdb", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %s", err)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run migrations: %s", err)
		}

		storeConfig = []interface{}{db}
	}

	supplyStore, err := supplyStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open supply store: %s", err)
	}
	utxoStore, err := utxoStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open utxo store: %s", err)
	}
	attestationStore, err := attestationStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open attestation store: %s", err)
	}
	redemptionStore, err := redemptionStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open redemption store: %s", err)
	}

	return &service{
		eventStore:       eventStore,
		supplyStore:      supplyStore,
		utxoStore:        utxoStore,
		attestationStore: attestationStore,
		redemptionStore:  redemptionStore,
	}, nil
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Supply() domain.SupplyRepository {
	return s.supplyStore
}

func (s *service) Utxos() domain.UtxoRepository {
	return s.utxoStore
}

func (s *service) Attestations() domain.AttestationRepository {
	return s.attestationStore
}

func (s *service) Redemptions() domain.RedemptionRepository {
	return s.redemptionStore
}

func (s *service) Close() {
	s.eventStore.Close()
	s.supplyStore.Close()
	s.utxoStore.Close()
	s.attestationStore.Close()
	s.redemptionStore.Close()
}

func newEventStore(storeType string, config []interface{}) (domain.EventRepository, error) {
	switch storeType {
	case "inmemory":
		return watermilldb.NewInMemoryEventRepository(config...)
	case "postgres":
		dsn, autoCreate, err := parsePostgresConfig(config)
		if err != nil {
			return nil, err
		}

		db, err := pgdb.OpenDb(dsn, autoCreate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres db: %s", err)
		}

		publisher, err := newPostgresPublisher(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %s", err)
		}
		log.Debug("publishing events to postgres")

		return watermilldb.NewWatermillEventRepository(publisher, db), nil
	default:
		return nil, fmt.Errorf("unknown event store db type")
	}
}

func newPostgresPublisher(db *sql.DB) (*watermillsql.Publisher, error) {
	return watermillsql.NewPublisher(
		db,
		watermillsql.PublisherConfig{
			SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		watermill.NewStdLogger(false, false),
	)
}

func parsePostgresConfig(config []interface{}) (string, bool, error) {
	if len(config) != 2 {
		return "", false, fmt.Errorf("invalid data store config for postgres")
	}

	dsn, ok := config[0].(string)
	if !ok {
		return "", false, fmt.Errorf("invalid DSN for postgres")
	}

	autoCreate, ok := config[1].(bool)
	if !ok {
		return "", false, fmt.Errorf("invalid autocreate flag for postgres")
	}
	return dsn, autoCreate, nil
}
