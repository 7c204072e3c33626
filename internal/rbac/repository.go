package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizgate/bizgate/internal/platform/db"
	"github.com/bizgate/bizgate/internal/shared"
)

// Repository defines persistence for permission rules.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	GetByEndpoint(ctx context.Context, endpoint string) (Rule, error)
	List(ctx context.Context, filter ListFilter) ([]Rule, error)
	Create(ctx context.Context, rule Rule) (Rule, error)
	Update(ctx context.Context, rule Rule) (Rule, error)
	Delete(ctx context.Context, endpoint string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, db: pool}
}

// WithTx runs fn against a repository bound to one transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{pool: r.pool, db: tx})
	})
}

const ruleColumns = `id, module, endpoint_name, allowed_groups`

// GetByEndpoint fetches a rule by its endpoint name.
func (r *PGRepository) GetByEndpoint(ctx context.Context, endpoint string) (Rule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM permissions WHERE endpoint_name = $1`, endpoint)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

// List returns rules ordered by module then endpoint name.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM permissions WHERE 1=1`
	args := []any{}
	if filter.Module != "" {
		args = append(args, filter.Module)
		query += ` AND module = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+db.EscapeLike(filter.Search)+"%")
		query += ` AND endpoint_name ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY module ASC, endpoint_name ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create inserts a rule. A concurrent insert of the same endpoint loses with shared.ErrDuplicateEndpoint.
func (r *PGRepository) Create(ctx context.Context, rule Rule) (Rule, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO permissions (module, endpoint_name, allowed_groups)
		VALUES ($1, $2, $3)
		RETURNING `+ruleColumns,
		rule.Module, rule.EndpointName, rule.AllowedGroupsCSV())
	created, err := scanRule(row)
	if err != nil {
		return Rule{}, mapWriteError(err)
	}
	return created, nil
}

// Update overwrites every column of the rule identified by rule.ID.
func (r *PGRepository) Update(ctx context.Context, rule Rule) (Rule, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE permissions SET module = $1, endpoint_name = $2, allowed_groups = $3
		WHERE id = $4
		RETURNING `+ruleColumns,
		rule.Module, rule.EndpointName, rule.AllowedGroupsCSV(), rule.ID)
	updated, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrNotFound
		}
		return Rule{}, mapWriteError(err)
	}
	return updated, nil
}

// Delete removes a rule by endpoint name.
func (r *PGRepository) Delete(ctx context.Context, endpoint string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE endpoint_name = $1`, endpoint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		rule Rule
		csv  string
	)
	if err := row.Scan(&rule.ID, &rule.Module, &rule.EndpointName, &csv); err != nil {
		return Rule{}, err
	}
	rule.AllowedGroups = SplitGroups(csv)
	return rule, nil
}

func mapWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok && constraint == "uq_permissions_endpoint" {
		return shared.ErrDuplicateEndpoint
	}
	return fmt.Errorf("rbac: write rule: %w", err)
}

var _ Repository = (*PGRepository)(nil)
