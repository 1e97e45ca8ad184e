package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations applies the embedded SQL migrations.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Instance Operations
// =============================================================================

type instanceRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Secret    string `db:"secret"`
	CreatedAt string `db:"created_at"`
}

func (r instanceRow) toInstance() *Instance {
	createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return &Instance{
		ID:        r.ID,
		Name:      r.Name,
		Secret:    r.Secret,
		CreatedAt: createdAt,
	}
}

func (s *SQLiteStore) EnsureInstance(ctx context.Context, name, secret string) (*Instance, error) {
	existing, err := s.GetInstance(ctx)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := instanceRow{
		ID:        uuid.NewString(),
		Name:      name,
		Secret:    secret,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO instances (id, name, secret, created_at)
		 VALUES (:id, :name, :secret, :created_at)`, row)
	if err != nil {
		return nil, NewStoreError("EnsureInstance", "failed to insert instance", err)
	}

	return row.toInstance(), nil
}

func (s *SQLiteStore) GetInstance(ctx context.Context) (*Instance, error) {
	var row instanceRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, secret, created_at FROM instances ORDER BY created_at LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("GetInstance", "no instance stored", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("GetInstance", "failed to query instance", err)
	}
	return row.toInstance(), nil
}

// =============================================================================
// Event Operations
// =============================================================================

type eventRow struct {
	ID        int64  `db:"id"`
	RunID     string `db:"run_id"`
	Service   string `db:"service"`
	Type      string `db:"type"`
	Message   string `db:"message"`
	CreatedAt string `db:"created_at"`
}

func (r eventRow) toEvent() Event {
	createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return Event{
		ID:        r.ID,
		RunID:     r.RunID,
		Service:   r.Service,
		Type:      r.Type,
		Message:   r.Message,
		CreatedAt: createdAt,
	}
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, event *Event) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := eventRow{
		RunID:     event.RunID,
		Service:   event.Service,
		Type:      event.Type,
		Message:   event.Message,
		CreatedAt: createdAt.Format(time.RFC3339Nano),
	}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO events (run_id, service, type, message, created_at)
		 VALUES (:run_id, :service, :type, :message, :created_at)`, row)
	if err != nil {
		return NewStoreError("RecordEvent", "failed to insert event", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	event.CreatedAt = createdAt
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, run_id, service, type, message, created_at
		 FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, NewStoreError("ListEvents", "failed to query events", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEvent())
	}
	return events, nil
}
