// Package testing provides test utilities and database setup for package tests
package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// TestDB represents a test database instance
type TestDB struct {
	DB   *gorm.DB
	Path string
	dir  string
}

// SetupTestDB creates a fresh SQLite database file and migrates every model
func SetupTestDB() (*TestDB, error) {
	dir, err := os.MkdirTemp("", "magpie-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	tdb, err := openTestDB(filepath.Join(dir, "magpie.db"))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	tdb.dir = dir
	return tdb, nil
}

// NewTestDB is the t.TempDir flavour of SetupTestDB; cleanup is registered on t
func NewTestDB(t interface {
	TempDir() string
	Fatalf(format string, args ...any)
	Cleanup(func())
}) *TestDB {
	tdb, err := openTestDB(filepath.Join(t.TempDir(), "magpie.db"))
	if err != nil {
		t.Fatalf("setup test db: %v", err)
	}
	t.Cleanup(func() { _ = tdb.TeardownTestDB() })
	return tdb
}

func openTestDB(path string) (*TestDB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}
	return &TestDB{DB: db, Path: path}, nil
}

// TeardownTestDB closes connections and removes the database file
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB == nil {
		return nil
	}
	if sqlDB, err := tdb.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if tdb.dir != "" {
		return os.RemoveAll(tdb.dir)
	}
	return nil
}

// ClearAllTables removes all rows while keeping the schema
func (tdb *TestDB) ClearAllTables() error {
	for _, m := range models.AllModels() {
		if err := tdb.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return fmt.Errorf("failed to clear table: %w", err)
		}
	}
	return nil
}

// TestWithDB runs testFunc against a throwaway database
func TestWithDB(testFunc func(*TestDB) error) error {
	tdb, err := SetupTestDB()
	if err != nil {
		return err
	}
	defer func() { _ = tdb.TeardownTestDB() }()
	return testFunc(tdb)
}

// CreateTestContext returns a context carrying request metadata like handlers set
func CreateTestContext() context.Context {
	ctx := context.WithValue(context.Background(), utils.RequestIDKey, "test-request")
	ctx = context.WithValue(ctx, utils.IPAddressKey, "127.0.0.1")
	ctx = context.WithValue(ctx, utils.UserAgentKey, "magpie-test")
	return ctx
}
