// Package postgres implements authcore.Store on PostgreSQL via
// database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	authcore "github.com/adminkit/authcore"
)

const pgErrUniqueViolation = "23505"

// Store runs queries against an existing *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

const userColumns = `id, email, password_hash, full_name, role_id, is_active,
	is_superuser, email_verified, mfa_enabled, mfa_secret_enc, last_login_at,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*authcore.User, error) {
	var u authcore.User
	var roleID, secretEnc sql.NullString
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &roleID,
		&u.IsActive, &u.IsSuperuser, &u.EmailVerified, &u.MFAEnabled,
		&secretEnc, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres: scan user: %w", err)
	}
	u.RoleID = roleID.String
	u.MFASecretEnc = secretEnc.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *authcore.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users
			(id, email, password_hash, full_name, role_id, is_active,
			 is_superuser, email_verified, mfa_enabled, mfa_secret_enc,
			 created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11, $12)`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.RoleID, u.IsActive,
		u.IsSuperuser, u.EmailVerified, u.MFAEnabled, u.MFASecretEnc,
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrDuplicateIdentity
		}
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*authcore.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, u *authcore.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			email = lower($2), password_hash = $3, full_name = $4,
			role_id = NULLIF($5, ''), is_active = $6, is_superuser = $7,
			email_verified = $8, mfa_enabled = $9,
			mfa_secret_enc = NULLIF($10, ''), last_login_at = $11,
			updated_at = $12
		WHERE id = $1`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.RoleID, u.IsActive,
		u.IsSuperuser, u.EmailVerified, u.MFAEnabled, u.MFASecretEnc,
		u.LastLoginAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrDuplicateIdentity
		}
		return fmt.Errorf("postgres: update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update user: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *Store) CountUsersWithRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE role_id = $1`, roleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count users: %w", err)
	}
	return n, nil
}

func (s *Store) SetMFA(ctx context.Context, userID string, enabled bool, secretEnc string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_enabled = $2, mfa_secret_enc = NULLIF($3, ''), updated_at = now()
		WHERE id = $1`,
		userID, enabled, secretEnc)
	if err != nil {
		return fmt.Errorf("postgres: set mfa: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: set mfa: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: replace backup codes: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres: replace backup codes: %w", err)
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mfa_backup_codes (user_id, code_hash, created_at)
			VALUES ($1, $2, now())`, userID, h); err != nil {
			return fmt.Errorf("postgres: replace backup codes: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: replace backup codes: %w", err)
	}
	return nil
}

// ConsumeBackupCode relies on the conditional DELETE being atomic: two
// concurrent redemptions of the same code can only produce one affected
// row between them.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mfa_backup_codes WHERE user_id = $1 AND code_hash = $2`,
		userID, hash)
	if err != nil {
		return false, fmt.Errorf("postgres: consume backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: consume backup code: %w", err)
	}
	return n == 1, nil
}

const roleColumns = `id, name, display_name, description, is_system, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*authcore.Role, error) {
	var r authcore.Role
	err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description,
		&r.IsSystem, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrRoleNotFound
		}
		return nil, fmt.Errorf("postgres: scan role: %w", err)
	}
	return &r, nil
}

func (s *Store) CreateRole(ctx context.Context, r *authcore.Role) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, display_name, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Name, r.DisplayName, r.Description, r.IsSystem, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrDuplicateIdentity
		}
		return fmt.Errorf("postgres: create role: %w", err)
	}
	return nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (*authcore.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

func (s *Store) RoleByName(ctx context.Context, name string) (*authcore.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	return scanRole(row)
}

func (s *Store) UpdateRole(ctx context.Context, r *authcore.Role) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE roles SET name = $2, display_name = $3, description = $4, updated_at = $5
		WHERE id = $1`,
		r.ID, r.Name, r.DisplayName, r.Description, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrDuplicateIdentity
		}
		return fmt.Errorf("postgres: update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update role: %w", err)
	}
	if n == 0 {
		return authcore.ErrRoleNotFound
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: delete role: %w", err)
	}
	if n == 0 {
		return authcore.ErrRoleNotFound
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]authcore.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list roles: %w", err)
	}
	defer rows.Close()

	var out []authcore.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list roles: %w", err)
	}
	return out, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: set role permissions: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("postgres: set role permissions: %w", err)
	}
	for _, name := range names {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_name)
			SELECT $1, name FROM permissions WHERE name = $2`, roleID, name)
		if err != nil {
			return fmt.Errorf("postgres: set role permissions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres: set role permissions: %w", err)
		}
		if n == 0 {
			return authcore.ErrPermissionNotFound
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: set role permissions: %w", err)
	}
	return nil
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission_name FROM role_permissions
		WHERE role_id = $1 ORDER BY permission_name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: role permissions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: role permissions: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: role permissions: %w", err)
	}
	return out, nil
}

func (s *Store) EnsurePermission(ctx context.Context, p authcore.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (name, category, action, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`,
		p.Name, p.Category, p.Action, p.Description)
	if err != nil {
		return fmt.Errorf("postgres: ensure permission: %w", err)
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]authcore.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, category, action, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list permissions: %w", err)
	}
	defer rows.Close()

	var out []authcore.Permission
	for rows.Next() {
		var p authcore.Permission
		if err := rows.Scan(&p.Name, &p.Category, &p.Action, &p.Description); err != nil {
			return nil, fmt.Errorf("postgres: list permissions: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list permissions: %w", err)
	}
	return out, nil
}
