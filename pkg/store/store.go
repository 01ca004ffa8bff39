package store

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ethpandaops/pipelinoor/pkg/config"
	"github.com/ethpandaops/pipelinoor/pkg/runlog"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for the raw and cleansed layers.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// DB exposes the underlying connection for the run log and the
	// quality gate, which query across tables.
	DB() *gorm.DB

	// ReplaceRaw truncates the raw table for the given entity and inserts
	// the given typed row slice in batches, returning the number of rows
	// written.
	ReplaceRaw(ctx context.Context, entity string, rows any) (int64, error)

	// ReplaceClean does the same for the cleansed table. A cleansed
	// snapshot is always rewritten in full, never patched.
	ReplaceClean(ctx context.Context, entity string, rows any) (int64, error)

	// Raw snapshot reads, one per entity.
	RawCustomers(ctx context.Context) ([]RawCustomer, error)
	RawProducts(ctx context.Context) ([]RawProduct, error)
	RawSales(ctx context.Context) ([]RawSale, error)
	RawERPCustomers(ctx context.Context) ([]RawERPCustomer, error)
	RawLocations(ctx context.Context) ([]RawLocation, error)
	RawProductCategories(ctx context.Context) ([]RawProductCategory, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log       logrus.FieldLogger
	cfg       *config.DatabaseConfig
	batchSize int
	db        *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
	batchSize int,
) Store {
	if batchSize < 1 {
		batchSize = config.DefaultBatchSize
	}

	return &store{
		log:       log.WithField("component", "store"),
		cfg:       cfg,
		batchSize: batchSize,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(allModels...); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if err := runlog.Migrate(ctx, s.db); err != nil {
		return err
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) DB() *gorm.DB {
	return s.db
}

// --- Layer rewrites ---

func (s *store) ReplaceRaw(
	ctx context.Context, entity string, rows any,
) (int64, error) {
	model, err := rawModel(entity)
	if err != nil {
		return 0, err
	}

	return s.replace(ctx, entity, model, rows)
}

func (s *store) ReplaceClean(
	ctx context.Context, entity string, rows any,
) (int64, error) {
	model, err := cleanModel(entity)
	if err != nil {
		return 0, err
	}

	return s.replace(ctx, entity, model, rows)
}

// replace truncates the model's table and writes the given rows in
// batches, inside one transaction so a failed rewrite never leaves a
// half-written snapshot.
func (s *store) replace(
	ctx context.Context, entity string, model, rows any,
) (int64, error) {
	var written int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
			return fmt.Errorf("truncating %s: %w", entity, err)
		}

		// gorm rejects creates on empty slices; an empty snapshot is a
		// valid rewrite (truncate only).
		if sliceLen(rows) == 0 {
			return nil
		}

		result := tx.CreateInBatches(rows, s.batchSize)
		if result.Error != nil {
			return fmt.Errorf("inserting %s rows: %w", entity, result.Error)
		}

		written = result.RowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"entity": entity,
		"rows":   written,
	}).Debug("Snapshot replaced")

	return written, nil
}

// sliceLen returns the length of a slice or pointer-to-slice value, or 0
// for anything else.
func sliceLen(rows any) int {
	v := reflect.ValueOf(rows)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	if v.Kind() != reflect.Slice {
		return 0
	}

	return v.Len()
}

// --- Raw snapshot reads ---

func (s *store) RawCustomers(ctx context.Context) ([]RawCustomer, error) {
	var rows []RawCustomer
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading raw customers: %w", err)
	}

	return rows, nil
}

func (s *store) RawProducts(ctx context.Context) ([]RawProduct, error) {
	var rows []RawProduct
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading raw products: %w", err)
	}

	return rows, nil
}

func (s *store) RawSales(ctx context.Context) ([]RawSale, error) {
	var rows []RawSale
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading raw sales: %w", err)
	}

	return rows, nil
}

func (s *store) RawERPCustomers(ctx context.Context) ([]RawERPCustomer, error) {
	var rows []RawERPCustomer
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading raw erp customers: %w", err)
	}

	return rows, nil
}

func (s *store) RawLocations(ctx context.Context) ([]RawLocation, error) {
	var rows []RawLocation
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading raw locations: %w", err)
	}

	return rows, nil
}

func (s *store) RawProductCategories(ctx context.Context) ([]RawProductCategory, error) {
	var rows []RawProductCategory
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading raw product categories: %w", err)
	}

	return rows, nil
}
