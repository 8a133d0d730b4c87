package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type CacheEntry struct {
	CacheKey  string         `gorm:"column:cache_key;primaryKey;size:64"`
	Payload   datatypes.JSON `gorm:"column:payload;not null"`
	Materials int            `gorm:"column:materials"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (CacheEntry) TableName() string { return "materialmap_cache_entries" }

type VersionEntry struct {
	Name         string    `gorm:"column:name;primaryKey;size:64"`
	LastModified string    `gorm:"column:last_modified"`
	ETag         string    `gorm:"column:etag"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (VersionEntry) TableName() string { return "materialmap_versions" }

// OpenSQL connects to a sqlite file or a postgres DSN and migrates the
// cache tables.
func OpenSQL(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
	case DriverPostgres, "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported persist driver %q", driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&CacheEntry{}, &VersionEntry{}); err != nil {
		return nil, fmt.Errorf("migrate cache tables: %w", err)
	}
	return db, nil
}

// SQLStore keeps the cached dataset as a JSON column.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (*materials.Dataset, error) {
	var e CacheEntry
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("load cache entry: %w", err)
	}
	var ds materials.Dataset
	if err := json.Unmarshal(e.Payload, &ds); err != nil {
		return nil, fmt.Errorf("decode cached dataset: %w", err)
	}
	return &ds, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, ds *materials.Dataset) error {
	raw, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	e := CacheEntry{
		CacheKey:  key,
		Payload:   datatypes.JSON(raw),
		Materials: len(ds.Materials),
		UpdatedAt: time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&e).Error
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&CacheEntry{}).Error
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLStore) LoadValidators(ctx context.Context) (materials.Validators, error) {
	var v VersionEntry
	err := s.db.WithContext(ctx).Where("name = ?", string(materials.ArtifactFull)).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return materials.Validators{}, nil
	}
	if err != nil {
		return materials.Validators{}, fmt.Errorf("load validators: %w", err)
	}
	return materials.Validators{LastModified: v.LastModified, ETag: v.ETag}, nil
}

func (s *SQLStore) SaveValidators(ctx context.Context, val materials.Validators) error {
	v := VersionEntry{
		Name:         string(materials.ArtifactFull),
		LastModified: val.LastModified,
		ETag:         val.ETag,
		UpdatedAt:    time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&v).Error
	if err != nil {
		return fmt.Errorf("store validators: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
