// Package repository is the Postgres write-behind store for managers and
// captured call records. Records are only ever inserted.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crmbot/internal/domain"
	"crmbot/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Repository struct {
	db DBTX
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// NewWithDB runs queries on q, e.g. a transaction.
func NewWithDB(q DBTX) *Repository {
	return &Repository{db: q}
}

const managerColumns = `id, telegram_id, full_name, ledger_id, active, created_at`

func scanManager(row pgx.Row) (domain.Manager, error) {
	var m domain.Manager
	err := row.Scan(&m.ID, &m.TelegramID, &m.FullName, &m.LedgerID, &m.Active, &m.CreatedAt)
	return m, err
}

func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (domain.Manager, error) {
	m, err := scanManager(r.db.QueryRow(ctx, `
    SELECT `+managerColumns+`
    FROM managers
    WHERE telegram_id = $1
  `, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Manager{}, apperr.NotFound("manager not found")
	}
	if err != nil {
		return domain.Manager{}, apperr.Persistence("get manager", err)
	}
	return m, nil
}

func (r *Repository) ListActive(ctx context.Context) ([]domain.Manager, error) {
	rows, err := r.db.Query(ctx, `
    SELECT `+managerColumns+`
    FROM managers
    WHERE active
    ORDER BY full_name
  `)
	if err != nil {
		return nil, apperr.Persistence("list managers", err)
	}
	defer rows.Close()

	var out []domain.Manager
	for rows.Next() {
		m, err := scanManager(rows)
		if err != nil {
			return nil, apperr.Persistence("scan manager", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list managers", err)
	}
	return out, nil
}

// Create inserts a manager. A taken telegram id is a KindConflict error.
func (r *Repository) Create(ctx context.Context, m domain.Manager) (domain.Manager, error) {
	created, err := scanManager(r.db.QueryRow(ctx, `
    INSERT INTO managers (telegram_id, full_name, ledger_id, active)
    VALUES ($1, $2, $3, $4)
    RETURNING `+managerColumns+`
  `, m.TelegramID, m.FullName, m.LedgerID, m.Active))
	if isUniqueViolation(err) {
		return domain.Manager{}, apperr.Conflict(fmt.Sprintf("manager %d already exists", m.TelegramID))
	}
	if err != nil {
		return domain.Manager{}, apperr.Persistence("create manager", err)
	}
	return created, nil
}

// Save appends a record. Saving the same record id twice is a no-op.
func (r *Repository) Save(ctx context.Context, rec domain.CallRecord) error {
	_, err := r.db.Exec(ctx, `
    INSERT INTO call_records (
      id, operator_id, session_kind, tax_id, company_name,
      contact_name, contact_phone, contact_email, comment,
      next_contact_date, created_at
    )
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    ON CONFLICT (id) DO NOTHING
  `, rec.ID, rec.OperatorID, string(rec.Kind), rec.TaxID, rec.CompanyName,
		rec.ContactName, rec.ContactPhone, rec.ContactEmail, rec.Comment,
		dateArg(rec.NextContactDate), rec.CreatedAt)
	if err != nil {
		return apperr.Persistence("save call record", err)
	}
	return nil
}

// Latest returns the operator's most recent record for a company.
func (r *Repository) Latest(ctx context.Context, operatorID int64, taxID string) (domain.CallRecord, error) {
	var (
		rec  domain.CallRecord
		kind string
		next *time.Time
	)
	err := r.db.QueryRow(ctx, `
    SELECT id, operator_id, session_kind, tax_id, company_name,
           contact_name, contact_phone, contact_email, comment,
           next_contact_date, created_at
    FROM call_records
    WHERE operator_id = $1 AND tax_id = $2
    ORDER BY created_at DESC
    LIMIT 1
  `, operatorID, taxID).Scan(
		&rec.ID, &rec.OperatorID, &kind, &rec.TaxID, &rec.CompanyName,
		&rec.ContactName, &rec.ContactPhone, &rec.ContactEmail, &rec.Comment,
		&next, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CallRecord{}, apperr.NotFound("no prior call for " + taxID)
	}
	if err != nil {
		return domain.CallRecord{}, apperr.Persistence("latest call record", err)
	}
	rec.Kind = domain.SessionKind(kind)
	rec.NextContactDate = next
	return rec, nil
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

func dateArg(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
