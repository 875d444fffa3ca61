package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
	"github.com/platinummonkey/carehub/pkg/storage/postgres"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new membership store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SubjectExists reports whether a user account with the id exists
func (s *PostgresStore) SubjectExists(ctx context.Context, subjectID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, subjectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check subject: %w", err)
	}
	return exists, nil
}

// CreateRoleGroup creates a new role group
func (s *PostgresStore) CreateRoleGroup(ctx context.Context, group *RoleGroup) error {
	query := `
		INSERT INTO role_groups (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query, group.Name, group.Description).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("role group %q already exists: %w", group.Name, apperr.ErrInvalidTransition)
		}
		return fmt.Errorf("failed to create role group: %w", err)
	}
	return nil
}

// GetRoleGroup retrieves a role group by name
func (s *PostgresStore) GetRoleGroup(ctx context.Context, name string) (*RoleGroup, error) {
	query := `
		SELECT id, name, description, created_at
		FROM role_groups
		WHERE name = $1
	`

	var group RoleGroup
	err := s.db.QueryRowContext(ctx, query, name).Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("role group", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role group: %w", err)
	}
	return &group, nil
}

// ListRoleGroups lists all role groups ordered by name
func (s *PostgresStore) ListRoleGroups(ctx context.Context) ([]RoleGroup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM role_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list role groups: %w", err)
	}
	defer rows.Close()

	var groups []RoleGroup
	for rows.Next() {
		var g RoleGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteRoleGroup deletes a role group by name
func (s *PostgresStore) DeleteRoleGroup(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM role_groups WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete role group: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete role group: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("role group", name)
	}
	return nil
}

// CreateRecord inserts a grant. The role group is resolved by name in the
// same statement.
func (s *PostgresStore) CreateRecord(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO memberships (user_id, role_group_id, start_date, end_date, granted_by)
		SELECT $1, g.id, $3, $4, $5
		FROM role_groups g
		WHERE g.name = $2
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		record.SubjectID,
		record.RoleGroup,
		nullDate(record.StartDate),
		nullDate(record.EndDate),
		record.GrantedBy,
	).Scan(&record.ID, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("role group", record.RoleGroup)
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

const recordColumns = `m.id, m.user_id, g.name, m.start_date, m.end_date, m.granted_by, m.created_at`

// GetRecord retrieves a grant by ID
func (s *PostgresStore) GetRecord(ctx context.Context, id int64) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM memberships m
		JOIN role_groups g ON g.id = m.role_group_id
		WHERE m.id = $1
	`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("membership", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return record, nil
}

// UpdateRecordDates corrects the validity window of a grant
func (s *PostgresStore) UpdateRecordDates(ctx context.Context, id int64, start, end *time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET start_date = $1, end_date = $2 WHERE id = $3`,
		nullDate(start), nullDate(end), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return requireRow(result, "membership", id)
}

// DeleteRecord removes a grant
func (s *PostgresStore) DeleteRecord(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return requireRow(result, "membership", id)
}

// ListBySubject lists every grant of a subject
func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID int64) ([]Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM memberships m
		JOIN role_groups g ON g.id = m.role_group_id
		WHERE m.user_id = $1
		ORDER BY m.id
	`
	return s.listRecords(ctx, query, subjectID)
}

// ListByRoleGroup lists every grant of a role group
func (s *PostgresStore) ListByRoleGroup(ctx context.Context, roleGroup string) ([]Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM memberships m
		JOIN role_groups g ON g.id = m.role_group_id
		WHERE g.name = $1
		ORDER BY m.id
	`
	return s.listRecords(ctx, query, roleGroup)
}

func (s *PostgresStore) listRecords(ctx context.Context, query string, arg any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var start, end sql.NullTime
	var grantedBy sql.NullInt64

	if err := row.Scan(&r.ID, &r.SubjectID, &r.RoleGroup, &start, &end, &grantedBy, &r.CreatedAt); err != nil {
		return nil, err
	}

	if start.Valid {
		r.StartDate = period.Ptr(start.Time)
	}
	if end.Valid {
		r.EndDate = period.Ptr(end.Time)
	}
	if grantedBy.Valid {
		id := grantedBy.Int64
		r.GrantedBy = &id
	}
	return &r, nil
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: period.Date(*t), Valid: true}
}

func requireRow(result sql.Result, kind string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(kind, id)
	}
	return nil
}
