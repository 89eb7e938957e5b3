package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for the journal.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Query(ctx context.Context, filter EntryFilter) ([]JournalEntry, error)
	Get(ctx context.Context, entryID int64) (JournalEntry, error)
	ListBooked(ctx context.Context) ([]JournalEntry, error)
}

// TxRepository exposes write methods available within a transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, []Line, error)
	UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
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

const entryColumns = `id, number, date, memo, reference_id, status, origin, source_id, reversal_of, posted_at, created_at, updated_at`

func (r *repository) Query(ctx context.Context, filter EntryFilter) ([]JournalEntry, error) {
	query := `SELECT DISTINCT e.id, e.number, e.date, e.memo, e.reference_id, e.status, e.origin, e.source_id, e.reversal_of, e.posted_at, e.created_at, e.updated_at
FROM journal_entries e`
	args := []any{}
	where := ` WHERE 1=1`
	if filter.AccountCode != "" {
		query += ` JOIN journal_lines l ON l.entry_id = e.id`
		args = append(args, filter.AccountCode)
		where += ` AND l.account_code = $1`
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND e.date >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += ` AND e.date <= $` + strconv.Itoa(len(args))
	}
	if filter.ReferenceID != "" {
		args = append(args, filter.ReferenceID)
		where += ` AND e.reference_id = $` + strconv.Itoa(len(args))
	}
	rows, err := r.db.Query(ctx, query+where+` ORDER BY e.number ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return r.attachLines(ctx, entries)
}

func (r *repository) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	entries, err := r.attachLines(ctx, []JournalEntry{entry})
	if err != nil {
		return JournalEntry{}, err
	}
	return entries[0], nil
}

// ListBooked returns every entry that hit the books, voided originals
// included so their reversals net out in downstream folds.
func (r *repository) ListBooked(ctx context.Context) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE status IN ('POSTED','VOIDED') ORDER BY number ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return r.attachLines(ctx, entries)
}

func (r *repository) attachLines(ctx context.Context, entries []JournalEntry) ([]JournalEntry, error) {
	for i := range entries {
		rows, err := r.db.Query(ctx, `SELECT id, entry_id, account_code, debit, credit, created_at FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entries[i].ID)
		if err != nil {
			return nil, err
		}
		lines, err := scanLines(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, memo, reference_id, status, origin, source_id, reversal_of, posted_at)
VALUES ($1,$2,$3,'POSTED',$4,$5,$6,NOW()) RETURNING id, number, posted_at, created_at, updated_at`,
		in.Date, in.Memo, in.ReferenceID, in.Origin, in.SourceID, in.ReversalOf)
	entry := JournalEntry{
		Date:        in.Date,
		Memo:        in.Memo,
		ReferenceID: in.ReferenceID,
		Status:      StatusPosted,
		Origin:      in.Origin,
		SourceID:    in.SourceID,
		ReversalOf:  in.ReversalOf,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_code, debit, credit) VALUES ($1,$2,$3,$4)`,
			entryID, line.AccountCode, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, []Line, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, ErrEntryNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_code, debit, credit, created_at FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	return entry, lines, nil
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, entryID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Memo, &e.ReferenceID, &e.Status, &e.Origin, &e.SourceID, &e.ReversalOf, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanEntries(rows pgx.Rows) ([]JournalEntry, error) {
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountCode, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
