package coa

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads the chart of accounts from Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// List returns all accounts ordered by code. Seeds the default chart when the
// table is empty so a fresh database boots with a usable layout.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	accounts, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 {
		return accounts, nil
	}
	if err := r.seed(ctx); err != nil {
		return nil, err
	}
	return r.list(ctx)
}

func (r *Repository) list(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, kind, is_active, created_at, updated_at FROM accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.Code, &acc.Name, &acc.Kind, &acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (r *Repository) seed(ctx context.Context) error {
	for _, acc := range SeedAccounts() {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO accounts (code, name, kind, is_active) VALUES ($1,$2,$3,$4) ON CONFLICT (code) DO NOTHING`,
			acc.Code, acc.Name, acc.Kind, acc.IsActive); err != nil {
			return err
		}
	}
	return nil
}
