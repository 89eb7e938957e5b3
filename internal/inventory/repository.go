package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	UpdateItemStock(ctx context.Context, itemID int64, quantity, averageCost decimal.Decimal) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) RepositoryPort {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const itemColumns = `id, code, name, quantity_on_hand, average_cost, min_threshold, max_threshold, sale_price, created_at, updated_at`

func (r *repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, itemID)
	return scanItem(row)
}

func (r *repository) ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error) {
	rows, err := r.db.Query(ctx, `SELECT id, date, kind, item_id, quantity, unit_cost, reason, document_ref, quantity_before, quantity_after, entry_id, source_id, created_at
FROM inventory_movements WHERE item_id=$1 ORDER BY id DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Date, &m.Kind, &m.ItemID, &m.Quantity, &m.UnitCost, &m.Reason, &m.DocumentRef, &m.QuantityBefore, &m.QuantityAfter, &m.EntryID, &m.SourceID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, itemID)
	return scanItem(row)
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (date, kind, item_id, quantity, unit_cost, reason, document_ref, quantity_before, quantity_after, entry_id, source_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		m.Date, m.Kind, m.ItemID, m.Quantity, m.UnitCost, m.Reason, m.DocumentRef, m.QuantityBefore, m.QuantityAfter, m.EntryID, m.SourceID).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateItemStock(ctx context.Context, itemID int64, quantity, averageCost decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inventory_items SET quantity_on_hand=$2, average_cost=$3, updated_at=NOW() WHERE id=$1`, itemID, quantity, averageCost)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.QuantityOnHand, &item.AverageCost, &item.MinThreshold, &item.MaxThreshold, &item.SalePrice, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}
