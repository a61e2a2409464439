package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dernekportal/portal-api/internal/data/pgxutil"
	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	apperrors "github.com/dernekportal/portal-api/internal/errors"
)

const userColumns = `id, name, email, role, avatar, is_active, labels, password_hash, created_at, updated_at, last_login_at`

const (
	userGetByIDQuery    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	userGetByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	userLockByEmail     = `SELECT ` + userColumns + ` FROM users WHERE email = $1 FOR UPDATE`
	userTouchLoginQuery = `UPDATE users SET last_login_at = $2 WHERE id = $1`
	userInsertQuery     = `
		INSERT INTO users (id, name, email, role, avatar, is_active, labels, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $8)
		RETURNING ` + userColumns
	userUpdateQuery = `
		UPDATE users SET
			name = COALESCE($2, name),
			role = COALESCE($3, role),
			is_active = COALESCE($4, is_active),
			labels = COALESCE($5::jsonb, labels),
			avatar = COALESCE($6, avatar),
			updated_at = $7
		WHERE id = $1
		RETURNING ` + userColumns
	userRefreshQuery = `
		UPDATE users SET name = $2, labels = $3, role = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + userColumns
)

// UserRepo is the Postgres-backed user store. Emails are stored normalized.
type UserRepo struct {
	DB  *sql.DB
	now func() time.Time
}

// NewUserRepo creates a UserRepo stamping rows with the wall clock.
func NewUserRepo(db *sql.DB) *UserRepo {
	return NewUserRepoWithClock(db, time.Now)
}

// NewUserRepoWithClock creates a UserRepo whose created/updated timestamps come from now.
func NewUserRepoWithClock(db *sql.DB, now func() time.Time) *UserRepo {
	if now == nil {
		now = time.Now
	}
	return &UserRepo{DB: db, now: now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domainauth.User, error) {
	var (
		u      domainauth.User
		labels []byte
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.Avatar, &u.IsActive, &labels,
		&u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	); err != nil {
		return domainauth.User{}, err
	}
	u.Labels = []string{}
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &u.Labels); err != nil {
			return domainauth.User{}, fmt.Errorf("decode labels: %w", err)
		}
	}
	return u, nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode labels: %w", err)
	}
	return string(b), nil
}

// GetUser returns the user with id. Ids that are not UUIDs cannot exist and report not found.
func (r *UserRepo) GetUser(ctx context.Context, id string) (domainauth.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domainauth.User{}, domainauth.ErrUserNotFound
	}
	return r.getOne(ctx, userGetByIDQuery, id)
}

// GetUserByEmail looks a user up by normalized email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (domainauth.User, error) {
	email = domainauth.NormalizeEmail(email)
	if email == "" {
		return domainauth.User{}, domainauth.ErrUserNotFound
	}
	return r.getOne(ctx, userGetByEmailQuery, email)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (domainauth.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domainauth.User{}, domainauth.ErrUserNotFound
	}
	if err != nil {
		return domainauth.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// TouchLastLogin records a successful login.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, userTouchLoginQuery, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domainauth.ErrUserNotFound
	}
	return nil
}

// Create inserts a password account. The request must carry the password hash.
func (r *UserRepo) Create(ctx context.Context, req domainauth.CreateUserRequest) (domainauth.User, error) {
	if req.PasswordHash == "" {
		return domainauth.User{}, errors.New("create user: password hash is required")
	}
	return r.insert(ctx, r.DB, insertParams{
		Name:         req.Name,
		Email:        domainauth.NormalizeEmail(req.Email),
		Role:         req.Role,
		Avatar:       req.Avatar,
		Labels:       req.Labels,
		PasswordHash: req.PasswordHash,
	})
}

type insertParams struct {
	Name         string
	Email        string
	Role         domainauth.Role
	Avatar       *string
	Labels       []string
	PasswordHash string
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *UserRepo) insert(ctx context.Context, q queryRower, p insertParams) (domainauth.User, error) {
	labels, err := encodeLabels(p.Labels)
	if err != nil {
		return domainauth.User{}, err
	}
	now := r.now().UTC()
	u, err := scanUser(q.QueryRowContext(ctx, userInsertQuery,
		uuid.NewString(), p.Name, p.Email, string(p.Role), p.Avatar, labels, p.PasswordHash, now))
	if err != nil {
		return domainauth.User{}, mapUserWriteErr("create user", err)
	}
	return u, nil
}

// List returns users ordered by creation time, newest first.
func (r *UserRepo) List(ctx context.Context, opts domainauth.ListUsersOptions) ([]domainauth.User, error) {
	query, args := buildUserListQuery(opts)

	out, err := pgxutil.QueryStructs[domainauth.User](ctx, r.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range out {
		if out[i].Labels == nil {
			out[i].Labels = []string{}
		}
	}
	return out, nil
}

func buildUserListQuery(opts domainauth.ListUsersOptions) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Role != nil {
		where = append(where, "role = "+arg(string(*opts.Role)))
	}
	if opts.Active != nil {
		where = append(where, "is_active = "+arg(*opts.Active))
	}
	if s := strings.TrimSpace(opts.Search); s != "" {
		p := arg("%" + escapeLike(strings.ToLower(s)) + "%")
		where = append(where, "(lower(name) LIKE "+p+" OR email LIKE "+p+")")
	}

	var b strings.Builder
	b.WriteString("SELECT " + userColumns + " FROM users")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	b.WriteString(" LIMIT " + arg(opts.Limit))
	b.WriteString(" OFFSET " + arg(opts.Offset))
	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Update patches the set fields of a user.
func (r *UserRepo) Update(ctx context.Context, id string, req domainauth.UpdateUserRequest) (domainauth.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domainauth.User{}, domainauth.ErrUserNotFound
	}
	var (
		name   *string
		role   *string
		labels *string
	)
	if req.Name != nil {
		v := strings.TrimSpace(*req.Name)
		name = &v
	}
	if req.Role != nil {
		v := string(*req.Role)
		role = &v
	}
	if req.Labels != nil {
		v, err := encodeLabels(*req.Labels)
		if err != nil {
			return domainauth.User{}, err
		}
		labels = &v
	}

	u, err := scanUser(r.DB.QueryRowContext(ctx, userUpdateQuery,
		id, name, role, req.IsActive, labels, req.Avatar, r.now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return domainauth.User{}, domainauth.ErrUserNotFound
	}
	if err != nil {
		return domainauth.User{}, mapUserWriteErr("update user", err)
	}
	return u, nil
}

// UpsertByEmail creates an SSO user without a password, or refreshes the name and labels
// of an existing one. The stored role changes only when SyncRole is set.
func (r *UserRepo) UpsertByEmail(ctx context.Context, req domainauth.UpsertUserRequest) (domainauth.User, error) {
	email := domainauth.NormalizeEmail(req.Email)
	if !domainauth.ValidEmail(email) {
		return domainauth.User{}, domainauth.ErrInvalidEmail
	}

	var out domainauth.User
	err := pgxutil.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		existing, err := scanUser(tx.QueryRowContext(ctx, userLockByEmail, email))
		if errors.Is(err, sql.ErrNoRows) {
			out, err = r.insert(ctx, tx, insertParams{
				Name:   req.Name,
				Email:  email,
				Role:   req.Role,
				Labels: req.Labels,
			})
			return err
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		role := existing.Role
		if req.SyncRole && req.Role != "" {
			role = string(req.Role)
		}
		name := existing.Name
		if strings.TrimSpace(req.Name) != "" {
			name = strings.TrimSpace(req.Name)
		}
		labels, err := encodeLabels(req.Labels)
		if err != nil {
			return err
		}
		out, err = scanUser(tx.QueryRowContext(ctx, userRefreshQuery,
			existing.ID, name, labels, role, r.now().UTC()))
		if err != nil {
			return mapUserWriteErr("refresh user", err)
		}
		return nil
	})
	if err != nil {
		return domainauth.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

func mapUserWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return domainauth.ErrEmailExists
	}
	return fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
}
