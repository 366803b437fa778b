package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the actor does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("account: email already exists")
)

// Repository handles data access for actors.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Actor, error)
	GetByEmail(ctx context.Context, email string) (Actor, error)
	GetByID(ctx context.Context, id string) (Actor, error)
	ListByRole(ctx context.Context, role Role, limit int) ([]Actor, error)
	SetStanding(ctx context.Context, id string, params StandingParams) (Actor, error)
}

// CreateParams contains write parameters for creating actors.
type CreateParams struct {
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
}

// StandingParams carries the standing columns written by administrative
// actions. Nil pointers clear the corresponding restriction.
type StandingParams struct {
	SuspendedAt      *time.Time
	SuspensionReason *string
	BannedAt         *time.Time
	BanReason        *string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const actorColumns = `id, email, full_name, password_hash, role, suspended_at, suspension_reason, banned_at, ban_reason, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Actor, error) {
	insertSQL := fmt.Sprintf(`
		INSERT INTO users (email, full_name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, actorColumns)

	actor, err := scanActor(r.pool.QueryRow(ctx, insertSQL, params.Email, params.FullName, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Actor{}, ErrDuplicateEmail
		}
		return Actor{}, fmt.Errorf("account: create actor: %w", err)
	}
	return actor, nil
}

func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Actor, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(email) = lower($1)`, actorColumns)
	actor, err := scanActor(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, fmt.Errorf("account: get by email: %w", err)
	}
	return actor, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Actor, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, actorColumns)
	actor, err := scanActor(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, fmt.Errorf("account: get by id: %w", err)
	}
	return actor, nil
}

func (r *PGRepository) ListByRole(ctx context.Context, role Role, limit int) ([]Actor, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE role = $1
		ORDER BY full_name ASC
		LIMIT $2
	`, actorColumns)

	rows, err := r.pool.Query(ctx, query, role, limit)
	if err != nil {
		return nil, fmt.Errorf("account: list by role: %w", err)
	}
	defer rows.Close()

	actors := make([]Actor, 0, limit)
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, fmt.Errorf("account: scan actor: %w", err)
		}
		actors = append(actors, actor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account: iterate actors: %w", err)
	}
	return actors, nil
}

func (r *PGRepository) SetStanding(ctx context.Context, id string, params StandingParams) (Actor, error) {
	query := fmt.Sprintf(`
		UPDATE users
		SET suspended_at = $2,
		    suspension_reason = $3,
		    banned_at = $4,
		    ban_reason = $5,
		    updated_at = get_tx_timestamp()
		WHERE id = $1
		RETURNING %s
	`, actorColumns)

	actor, err := scanActor(r.pool.QueryRow(ctx, query, id, params.SuspendedAt, params.SuspensionReason, params.BannedAt, params.BanReason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, fmt.Errorf("account: set standing: %w", err)
	}
	return actor, nil
}

func scanActor(row pgx.Row) (Actor, error) {
	var a Actor
	return a, row.Scan(
		&a.ID,
		&a.Email,
		&a.FullName,
		&a.PasswordHash,
		&a.Role,
		&a.SuspendedAt,
		&a.SuspensionReason,
		&a.BannedAt,
		&a.BanReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}
