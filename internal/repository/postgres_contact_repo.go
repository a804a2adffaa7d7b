package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/solidfoundation/internal/model"
)

const contactColumns = `id, first_name, last_name, email, phone, service_type, description, status, created_at, updated_at`

// PostgresContactRepo はPostgreSQLを使用した問い合わせリポジトリ。
type PostgresContactRepo struct {
	db *sql.DB
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanContact は1行分の問い合わせをスキャンする。
func scanContact(row rowScanner) (*model.ContactRequest, error) {
	var (
		c           model.ContactRequest
		phone       sql.NullString
		serviceType sql.NullString
		description sql.NullString
		status      string
	)
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email,
		&phone, &serviceType, &description, &status,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if phone.Valid {
		c.Phone = &phone.String
	}
	if serviceType.Valid {
		st := model.ServiceType(serviceType.String)
		c.ServiceType = &st
	}
	if description.Valid {
		c.Description = &description.String
	}
	c.Status = model.ContactStatus(status)

	return &c, nil
}

// nullString は空でないポインタ文字列をsql.NullStringに変換する。
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Create は問い合わせを作成する。
func (r *PostgresContactRepo) Create(ctx context.Context, req *model.NewContactRequest) (*model.ContactRequest, error) {
	var serviceType sql.NullString
	if req.ServiceType != nil {
		serviceType = sql.NullString{String: string(*req.ServiceType), Valid: true}
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO contact_requests (first_name, last_name, email, phone, service_type, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+contactColumns,
		req.FirstName, req.LastName, req.Email,
		nullString(req.Phone), serviceType, nullString(req.Description),
		string(model.ContactStatusNew),
	)

	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create contact request: %w", err)
	}
	return c, nil
}

// FindByID は指定IDの問い合わせを取得する。見つからない場合はnilを返す。
func (r *PostgresContactRepo) FindByID(ctx context.Context, id int64) (*model.ContactRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contact_requests WHERE id = $1`,
		id,
	)

	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact request: %w", err)
	}
	return c, nil
}

// buildListQuery は絞り込み条件からSELECT文と引数を組み立てる。
func buildListQuery(filter model.ContactFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR description ILIKE $%d)",
			n, n, n, n,
		))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + contactColumns + ` FROM contact_requests`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	return sb.String(), args
}

// List は絞り込み条件に一致する問い合わせをcreated_at降順で返す。
func (r *PostgresContactRepo) List(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error) {
	query, args := buildListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact requests: %w", err)
	}
	defer rows.Close()

	results := make([]*model.ContactRequest, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact request: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact requests: %w", err)
	}

	return results, nil
}

// UpdateStatus は対応状況を更新しupdated_atを現在時刻にする。見つからない場合はnilを返す。
func (r *PostgresContactRepo) UpdateStatus(ctx context.Context, id int64, status model.ContactStatus) (*model.ContactRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE contact_requests
		 SET status = $1, updated_at = now()
		 WHERE id = $2
		 RETURNING `+contactColumns,
		string(status), id,
	)

	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update contact request status: %w", err)
	}
	return c, nil
}

// Delete は指定IDの問い合わせを削除する。
func (r *PostgresContactRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM contact_requests WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete contact request: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Stats は管理画面向けの集計値を1クエリで返す。
func (r *PostgresContactRepo) Stats(ctx context.Context, since time.Time) (*model.ContactStats, error) {
	stats := &model.ContactStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
			count(*),
			count(*) FILTER (WHERE created_at >= $1),
			count(*) FILTER (WHERE status = $2),
			count(*) FILTER (WHERE status = $3)
		 FROM contact_requests`,
		since, string(model.ContactStatusNew), string(model.ContactStatusCompleted),
	).Scan(&stats.Total, &stats.NewThisWeek, &stats.Pending, &stats.Completed)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate contact request stats: %w", err)
	}
	return stats, nil
}

// DeleteClosedBefore はクローズ済みの古い問い合わせを削除し、削除件数を返す。
func (r *PostgresContactRepo) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM contact_requests
		 WHERE status IN ($1, $2) AND updated_at < $3`,
		string(model.ContactStatusCompleted), string(model.ContactStatusCancelled), before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete closed contact requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ContactRepository = (*PostgresContactRepo)(nil)
