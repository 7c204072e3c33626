package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizgate/bizgate/internal/platform/db"
	"github.com/bizgate/bizgate/internal/shared"
)

// Repository defines persistence operations for identities and groups.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	CreateIdentity(ctx context.Context, in NewIdentity) (*Identity, error)
	ListIdentities(ctx context.Context) ([]Identity, error)
	UpdateRole(ctx context.Context, userID int64, role string) error
	EnsureGroup(ctx context.Context, name string) (Group, error)
	AttachGroup(ctx context.Context, userID, groupID int64) error
	ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error
	GroupsOf(ctx context.Context, userID int64) ([]string, error)
	SetRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
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

const identityColumns = `id, username, email, password_hash, role, refresh_token, refresh_expires_at`

// FindByUsername fetches an identity with its group names.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM users WHERE username = $1`, username)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	groups, err := r.GroupsOf(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	identity.Groups = groups
	return identity, nil
}

// CreateIdentity inserts a new identity. Username and email collisions map to their sentinels.
func (r *PGRepository) CreateIdentity(ctx context.Context, in NewIdentity) (*Identity, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO users (username, email, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING `+identityColumns, in.Username, in.Email, in.PasswordHash, in.Role)
	identity, err := scanIdentity(row)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			switch constraint {
			case "uq_users_username":
				return nil, shared.ErrUsernameExists
			case "uq_users_email":
				return nil, shared.ErrEmailExists
			}
		}
		return nil, fmt.Errorf("auth: insert identity: %w", err)
	}
	return identity, nil
}

// ListIdentities returns every identity ordered by username, groups included.
func (r *PGRepository) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := r.db.Query(ctx, `SELECT `+identityColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	identities := []Identity{}
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		identities = append(identities, *identity)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	memberships, err := r.db.Query(ctx, `SELECT ug.user_id, g.name
FROM user_groups ug
JOIN groups g ON g.id = ug.group_id
ORDER BY ug.user_id, g.name`)
	if err != nil {
		return nil, err
	}
	defer memberships.Close()
	byUser := make(map[int64][]string)
	for memberships.Next() {
		var userID int64
		var name string
		if err := memberships.Scan(&userID, &name); err != nil {
			return nil, err
		}
		byUser[userID] = append(byUser[userID], name)
	}
	if err := memberships.Err(); err != nil {
		return nil, err
	}
	for i := range identities {
		identities[i].Groups = byUser[identities[i].ID]
	}
	return identities, nil
}

// UpdateRole changes the stored role of an identity.
func (r *PGRepository) UpdateRole(ctx context.Context, userID int64, role string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// EnsureGroup returns the group named name, creating it when absent.
func (r *PGRepository) EnsureGroup(ctx context.Context, name string) (Group, error) {
	var group Group
	err := r.db.QueryRow(ctx, `INSERT INTO groups (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name`, name).Scan(&group.ID, &group.Name)
	if err != nil {
		return Group{}, fmt.Errorf("auth: ensure group %s: %w", name, err)
	}
	return group, nil
}

// AttachGroup adds a membership. Attaching twice is a no-op.
func (r *PGRepository) AttachGroup(ctx context.Context, userID, groupID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2)
ON CONFLICT ON CONSTRAINT uq_user_group DO NOTHING`, userID, groupID)
	return err
}

// ReplaceGroups sets the memberships of userID to exactly groupIDs.
func (r *PGRepository) ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_groups WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, groupID := range groupIDs {
		if err := r.AttachGroup(ctx, userID, groupID); err != nil {
			return err
		}
	}
	return nil
}

// GroupsOf lists the group names userID belongs to, sorted by name.
func (r *PGRepository) GroupsOf(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT g.name FROM user_groups ug
JOIN groups g ON g.id = ug.group_id
WHERE ug.user_id = $1
ORDER BY g.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetRefreshToken overwrites the stored refresh token. A nil token clears it.
func (r *PGRepository) SetRefreshToken(ctx context.Context, userID int64, token *string, expiresAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET refresh_token = $2, refresh_expires_at = $3, updated_at = NOW() WHERE id = $1`,
		userID, token, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ClearExpiredRefreshTokens drops stored refresh tokens whose expiry is not after now.
func (r *PGRepository) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE users SET refresh_token = NULL, refresh_expires_at = NULL
WHERE refresh_token IS NOT NULL AND refresh_expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	var identity Identity
	if err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Role,
		&identity.RefreshToken,
		&identity.RefreshExpiresAt,
	); err != nil {
		return nil, err
	}
	return &identity, nil
}

var _ Repository = (*PGRepository)(nil)
