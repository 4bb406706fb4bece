package counterparties

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository stores counterparties in Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const columns = `id, document_type, document_number, name, address, phone, email, created_at, updated_at`

func scan(row pgx.Row) (Counterparty, error) {
	var c Counterparty
	var docType string
	err := row.Scan(&c.ID, &docType, &c.DocumentNumber, &c.Name, &c.Address, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counterparty{}, ErrNotFound
	}
	c.DocumentType = DocumentType(docType)
	return c, err
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateDocument
		case "23503":
			return ErrInUse
		}
	}
	return err
}

func (r *PgRepository) Create(ctx context.Context, c Counterparty, searchName string) (Counterparty, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO counterparties (document_type, document_number, name, address, phone, email, search_name)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+columns,
		string(c.DocumentType), c.DocumentNumber, c.Name, c.Address, c.Phone, c.Email, searchName)
	out, err := scan(row)
	if err != nil {
		return Counterparty{}, mapPgError(err)
	}
	return out, nil
}

func (r *PgRepository) Get(ctx context.Context, id int64) (Counterparty, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM counterparties WHERE id = $1`, id))
}

func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]Counterparty, int, error) {
	where := ""
	args := []any{}
	if filter.Search != "" {
		where = ` WHERE document_number LIKE $1 || '%' OR search_name LIKE '%' || $2 || '%'`
		args = append(args, likeEscaper.Replace(filter.Search), foldForQuery(filter.Search))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM counterparties`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count counterparties: %w", err)
	}
	query := `SELECT ` + columns + ` FROM counterparties` + where + ` ORDER BY name, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list counterparties: %w", err)
	}
	defer rows.Close()
	var out []Counterparty
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *PgRepository) Update(ctx context.Context, c Counterparty, searchName string) (Counterparty, error) {
	row := r.pool.QueryRow(ctx, `UPDATE counterparties
SET name = $2, address = $3, phone = $4, email = $5, search_name = $6, updated_at = NOW()
WHERE id = $1 RETURNING `+columns,
		c.ID, c.Name, c.Address, c.Phone, c.Email, searchName)
	return scan(row)
}

func (r *PgRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM counterparties WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
