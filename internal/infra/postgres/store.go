// Package postgres implements the durable store on top of a pgx connection
// pool. The schema is managed by the migrations subpackage; this code assumes
// the tables already exist.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiztrack-service/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
	hub  store.Hub
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
