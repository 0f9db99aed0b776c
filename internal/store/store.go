package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ticket-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetRecitalByID retrieves a recital by ID. Returns nil when it does not
// exist; recital CRUD lives in the admin tooling, this is read-only.
func (s *Store) GetRecitalByID(ctx context.Context, id int64) (*models.Recital, error) {
	var recital models.Recital
	err := s.db.GetContext(ctx, &recital, "SELECT * FROM recitals WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &recital, nil
}

// GetRecitalBySlug retrieves a recital by its URL slug
func (s *Store) GetRecitalBySlug(ctx context.Context, slug string) (*models.Recital, error) {
	var recital models.Recital
	err := s.db.GetContext(ctx, &recital, "SELECT * FROM recitals WHERE slug = $1", slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &recital, nil
}

// GetTicketTypesByRecital retrieves the price tiers for a recital
func (s *Store) GetTicketTypesByRecital(ctx context.Context, recitalID int64) ([]models.TicketType, error) {
	var types []models.TicketType
	err := s.db.SelectContext(ctx, &types,
		"SELECT * FROM ticket_types WHERE recital_id = $1 ORDER BY id", recitalID)
	return types, err
}

// GetTicketTypesByIDs retrieves multiple ticket types by IDs
func (s *Store) GetTicketTypesByIDs(ctx context.Context, ids []int64) ([]models.TicketType, error) {
	if len(ids) == 0 {
		return []models.TicketType{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM ticket_types WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var types []models.TicketType
	err = s.db.SelectContext(ctx, &types, query, args...)
	return types, err
}
