package invoicing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

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

const invoiceColumns = `id, number, client, date, due_date, subtotal, tax_amount, total, status, validation, rejection_reason, attempt_id, sale_entry_id, payment_entry_id, created_at, updated_at`

func (r *repository) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, invoiceID)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	lines, err := r.loadLines(ctx, invoice.ID)
	if err != nil {
		return Invoice{}, err
	}
	invoice.Lines = lines
	return invoice, nil
}

func (r *repository) ListInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func (r *repository) loadLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.db.Query(ctx, `SELECT id, invoice_id, item_id, quantity, unit_price, discount FROM invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertInvoice(ctx context.Context, invoice Invoice) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO invoices (number, client, date, due_date, subtotal, tax_amount, total, status, validation, rejection_reason, attempt_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at, updated_at`,
		invoice.Number, invoice.Client, invoice.Date, invoice.DueDate, invoice.Subtotal, invoice.TaxAmount, invoice.Total,
		invoice.Status, invoice.Validation, invoice.RejectionReason, invoice.AttemptID)
	if err := row.Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	for i := range invoice.Lines {
		line := &invoice.Lines[i]
		line.InvoiceID = invoice.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, item_id, quantity, unit_price, discount)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			line.InvoiceID, line.ItemID, line.Quantity, line.UnitPrice, line.Discount).Scan(&line.ID); err != nil {
			return Invoice{}, err
		}
	}
	return invoice, nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, invoiceID)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, invoice_id, item_id, quantity, unit_price, discount FROM invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	if err != nil {
		return Invoice{}, err
	}
	invoice.Lines = lines
	return invoice, nil
}

func (r *txRepository) UpdateInvoice(ctx context.Context, invoice Invoice) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, validation=$3, rejection_reason=$4, attempt_id=$5, sale_entry_id=$6, payment_entry_id=$7, updated_at=NOW() WHERE id=$1`,
		invoice.ID, invoice.Status, invoice.Validation, invoice.RejectionReason, invoice.AttemptID, invoice.SaleEntryID, invoice.PaymentEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Client, &inv.Date, &inv.DueDate, &inv.Subtotal, &inv.TaxAmount, &inv.Total,
		&inv.Status, &inv.Validation, &inv.RejectionReason, &inv.AttemptID, &inv.SaleEntryID, &inv.PaymentEntryID, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func scanLines(rows pgx.Rows) ([]InvoiceLine, error) {
	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ItemID, &line.Quantity, &line.UnitPrice, &line.Discount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
