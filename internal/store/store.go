package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"library-rag/internal/config"
	"library-rag/internal/models"
)

// ErrNotFound is returned when no library exists under the requested id.
var ErrNotFound = errors.New("library not found")

// Store is the relational home of library records. The vector index is
// deliberately outside its transaction boundary: a committed write stands
// even when the follow-up indexing side effect fails.
type Store struct {
	db *bun.DB
}

// Connect opens the Postgres connection pool behind a bun handle.
func Connect(cfg *config.DatabaseConfig) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithPassword(cfg.Password),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Init creates the libraries table if needed and, when the table is empty,
// inserts two sample records. The seeded records are returned so the
// caller can index them.
func (s *Store) Init(ctx context.Context) ([]models.Library, error) {
	if _, err := s.db.NewCreateTable().Model((*models.Library)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating libraries table: %w", err)
	}

	count, err := s.db.NewSelect().Model((*models.Library)(nil)).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting libraries: %w", err)
	}
	if count > 0 {
		return nil, nil
	}

	samples := []models.Library{
		{
			Name:       "FastAPI",
			Content:    "FastAPI framework, high performance, easy to learn, fast to code, ready for production",
			SourceType: models.SourceTypeText,
			Origin:     "https://fastapi.tiangolo.com/",
		},
		{
			Name:       "SQLModel",
			Content:    "SQLModel, databases in Python, designed for simplicity, compatibility, and robustness.",
			SourceType: models.SourceTypeText,
			Origin:     "https://sqlmodel.tiangolo.com/",
		},
	}
	if _, err := s.db.NewInsert().Model(&samples).Exec(ctx); err != nil {
		return nil, fmt.Errorf("seeding sample libraries: %w", err)
	}
	return samples, nil
}

// Create inserts a new library; the auto-assigned id is written back.
func (s *Store) Create(ctx context.Context, lib *models.Library) error {
	if lib.SourceType == "" {
		lib.SourceType = models.SourceTypeText
	}
	if _, err := s.db.NewInsert().Model(lib).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("inserting library: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*models.Library, error) {
	lib := new(models.Library)
	err := s.db.NewSelect().Model(lib).Where("l.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching library %d: %w", id, err)
	}
	return lib, nil
}

func (s *Store) List(ctx context.Context) ([]models.Library, error) {
	var libs []models.Library
	if err := s.db.NewSelect().Model(&libs).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}
	return libs, nil
}

// Update merges only the named columns into the stored record and returns
// the updated row. Columns absent from the payload are left untouched.
func (s *Store) Update(ctx context.Context, id int64, lib *models.Library, columns []string) (*models.Library, error) {
	if len(columns) == 0 {
		return s.Get(ctx, id)
	}
	lib.ID = id
	res, err := s.db.NewUpdate().Model(lib).Column(columns...).WherePK().Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("updating library %d: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*models.Library)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting library %d: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
