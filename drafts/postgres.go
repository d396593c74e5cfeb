package drafts

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationsFS embeds all PostgreSQL migration files.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// RunMigrations applies all embedded SQL files in lexical order.
// Migrations are expected to be idempotent.
func RunMigrations(ctx context.Context, pool *Pool) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

const pgErrUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *Pool
	now  func() time.Time
}

func NewPostgresStore(pool *Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Put(ctx context.Context, d *Draft) error {
	if err := validate(d); err != nil {
		return err
	}
	query := `
		INSERT INTO token_drafts (id, owner, params, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	var expiresAt *time.Time
	if !d.ExpiresAt.IsZero() {
		expiresAt = &d.ExpiresAt
	}
	_, err := s.pool.Exec(ctx, query, d.ID, d.Owner, []byte(d.Params), d.CreatedAt, expiresAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

const draftColumns = `id, owner, params, created_at, expires_at`

func scanDraft(row pgx.Row) (*Draft, error) {
	var (
		d         Draft
		params    []byte
		expiresAt *time.Time
	)
	if err := row.Scan(&d.ID, &d.Owner, &params, &d.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	d.Params = params
	if expiresAt != nil {
		d.ExpiresAt = *expiresAt
	}
	return &d, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM token_drafts WHERE id = $1`
	d, err := scanDraft(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	if d.Expired(s.now()) {
		return nil, ErrExpired
	}
	return d, nil
}

// Claim deletes the row only when owner holds an unexpired draft, the DELETE itself
// is the claim.
func (s *PostgresStore) Claim(ctx context.Context, id, owner string) (*Draft, error) {
	query := `
		DELETE FROM token_drafts
		WHERE id = $1 AND owner = $2 AND (expires_at IS NULL OR expires_at > $3)
		RETURNING ` + draftColumns
	d, err := scanDraft(s.pool.QueryRow(ctx, query, id, owner, s.now()))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim draft: %w", err)
	}
	// tell an expired draft apart from a missing or foreign one
	if _, err = s.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM token_drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes drafts that expired before now and returns how many.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM token_drafts WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired drafts: %w", err)
	}
	return tag.RowsAffected(), nil
}
