package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tauraamui/framecache/pkg/database/dbconn"
	"github.com/tauraamui/framecache/pkg/database/models"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/xerror"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	vendorName       = "tauraamui"
	appName          = "framecache"
	databaseFileName = "catalog.db"
)

// InMemoryPath returns a DSN for a private, shared-cache in-memory catalog.
func InMemoryPath() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

var (
	ErrCreateDBFile    = xerror.New("unable to create database file")
	ErrDBAlreadyExists = xerror.New("database file already exists")
)

var uc = os.UserCacheDir
var fs = afero.NewOsFs()

// Setup creates the catalog file and runs migrations against it.
func Setup() error {
	log.Info("Creating sequence catalog file...")

	path, err := ResolvePath()
	if err != nil {
		return err
	}

	if err := createFile(path); err != nil {
		return err
	}

	db, err := ConnectPath(path)
	if err != nil {
		return err
	}
	return db.Close()
}

func Destroy() error {
	dbFilePath, err := ResolvePath()
	if err != nil {
		return xerror.Errorf("unable to delete database file: %w", err)
	}

	return fs.Remove(dbFilePath)
}

// Connect opens the catalog at its resolved default location.
func Connect() (dbconn.GormWrapper, error) {
	dbPath, err := ResolvePath()
	if err != nil {
		return nil, err
	}
	return ConnectPath(dbPath)
}

func ConnectPath(dbPath string) (dbconn.GormWrapper, error) {
	log.Debug("Connecting to DB: %s", dbPath)
	db, err := openDBConnection(dbPath)
	if err != nil {
		return nil, xerror.Errorf("unable to open db connection: %w", err)
	}

	err = models.AutoMigrate(db)
	if err != nil {
		return nil, xerror.Errorf("unable to run automigrations: %w", err)
	}

	return db, nil
}

var openDBConnection = func(path string) (dbconn.GormWrapper, error) {
	logger := logger.New(nil, logger.Config{LogLevel: logger.Silent})
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	return dbconn.Wrap(db), nil
}

// Located returns the resolved catalog path and whether a catalog file
// exists there.
func Located() (string, bool) {
	path, err := ResolvePath()
	if err != nil {
		return "", false
	}
	if _, err := fs.Stat(path); err != nil {
		return path, false
	}
	return path, true
}

func ResolvePath() (string, error) {
	databasePath := os.Getenv("FRAMECACHE_CATALOG")
	if len(databasePath) > 0 {
		return databasePath, nil
	}

	databaseParentDir, err := uc()
	if err != nil {
		return "", xerror.Errorf("unable to resolve %s database file location: %w", databaseFileName, err)
	}

	return filepath.Join(
		databaseParentDir,
		vendorName,
		appName,
		databaseFileName), nil
}

func createFile(path string) error {
	if _, err := fs.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := fs.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm); err != nil {
			return xerror.Errorf("%v: %w", ErrCreateDBFile, err)
		}

		f, err := fs.Create(path)
		if err != nil {
			return xerror.Errorf("%v: %w", ErrCreateDBFile, err)
		}
		return f.Close()
	}

	return xerror.Errorf("%w: %s", ErrDBAlreadyExists, path)
}
