package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/drummonds/goPageTurn/config"
)

// BunDB implements Repository using Bun ORM over sqlite
type BunDB struct {
	db *bun.DB
}

// NewRepository initializes the sqlite recents database. A viewer is a
// single-node application, so sqlite is the only backend.
func NewRepository(serverConfig config.ServerConfig) *BunDB {
	dbName := serverConfig.DatabaseName
	if dbName == "" {
		dbName = "gopageturn"
	}

	var connectionString string
	if strings.Contains(dbName, ":memory:") {
		connectionString = "file::memory:?cache=shared&mode=rwc"
	} else {
		// databases dir keeps sqlite files out of the working directory root
		if _, err := os.Stat("databases"); os.IsNotExist(err) {
			if err := os.Mkdir("databases", os.ModePerm); err != nil {
				Logger.Error("Unable to create folder for databases", "error", err)
				os.Exit(1)
			}
		}
		connectionString = fmt.Sprintf("file:databases/%s.sqlite?cache=shared&mode=rwc", dbName)
	}

	Logger.Info("Initializing sqlite database with Bun ORM...", "connectionString", connectionString)
	sqlDB, err := sql.Open(sqliteshim.ShimName, connectionString)
	if err != nil {
		Logger.Error("Failed to open sqlite database", "error", err)
		os.Exit(1)
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	// Option to turn on verbose logging just returns failures otherwise
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(false)))

	if err := createSchema(context.Background(), db); err != nil {
		Logger.Error("Failed to create database schema", "error", err)
		os.Exit(1)
	}
	Logger.Info("Connected to database successfully")

	return &BunDB{db: db}
}

// createSchema creates the tables if they don't exist yet
func createSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*RecentDocument)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// SaveRecent inserts or refreshes the recents row for a document path.
func (b *BunDB) SaveRecent(doc *RecentDocument) error {
	_, err := b.db.NewInsert().
		Model(doc).
		On("CONFLICT (path) DO UPDATE").
		Set("ulid = EXCLUDED.ulid").
		Set("page_count = EXCLUDED.page_count").
		Set("last_page = EXCLUDED.last_page").
		Set("opened_at = EXCLUDED.opened_at").
		Exec(context.Background())
	if err != nil {
		return fmt.Errorf("unable to save recent document: %w", err)
	}
	return nil
}

// ListRecents returns the most recently opened documents, newest first.
func (b *BunDB) ListRecents(limit int) ([]RecentDocument, error) {
	if limit <= 0 {
		limit = 10
	}
	var docs []RecentDocument
	err := b.db.NewSelect().
		Model(&docs).
		Order("opened_at DESC").
		Limit(limit).
		Scan(context.Background())
	if err != nil {
		return nil, fmt.Errorf("unable to list recent documents: %w", err)
	}
	return docs, nil
}

// UpdateLastPage records the page a session ended on.
func (b *BunDB) UpdateLastPage(ulidStr string, lastPage int) error {
	_, err := b.db.NewUpdate().
		Model((*RecentDocument)(nil)).
		Set("last_page = ?", lastPage).
		Where("ulid = ?", ulidStr).
		Exec(context.Background())
	if err != nil {
		return fmt.Errorf("unable to update last page: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (b *BunDB) Close() error {
	return b.db.Close()
}
