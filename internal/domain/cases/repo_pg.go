package cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type caseRepoPG struct{ db queryable }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &caseRepoPG{db: pool} }

const caseCols = `id, clinical_note, detected_conditions, confirmed_condition,
	icd_codes, registration_note, created_at`

func (r *caseRepoPG) scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.ClinicalNote, &c.DetectedConditions, &c.ConfirmedCondition,
		&c.ICDCodes, &c.RegistrationNote, &c.CreatedAt)
	if c.DetectedConditions == nil {
		c.DetectedConditions = []string{}
	}
	return &c, err
}

func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.New()
	err := r.db.QueryRow(ctx, `
		INSERT INTO clinical_case (id, clinical_note, detected_conditions, confirmed_condition,
			icd_codes, registration_note)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		c.ID, c.ClinicalNote, c.DetectedConditions, c.ConfirmedCondition,
		c.ICDCodes, c.RegistrationNote).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert clinical_case: %w", err)
	}
	return nil
}

func (r *caseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := r.scanCase(r.db.QueryRow(ctx, `SELECT `+caseCols+` FROM clinical_case WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select clinical_case: %w", err)
	}
	return c, nil
}

func (r *caseRepoPG) List(ctx context.Context, limit, offset int) ([]*Case, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clinical_case`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clinical_case: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+caseCols+` FROM clinical_case
		ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list clinical_case: %w", err)
	}
	defer rows.Close()

	items := []*Case{}
	for rows.Next() {
		c, err := r.scanCase(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan clinical_case: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate clinical_case: %w", err)
	}
	return items, total, nil
}

func (r *caseRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clinical_case WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete clinical_case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
