package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortly/internal/model"
)

var (
	ErrMappingNotFound = errors.New("mapping not found")
	ErrCodeTaken       = errors.New("short code already taken")
	ErrDatabaseError   = errors.New("database error")
)

const dbTimeout = 5 * time.Second

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint breach.
const uniqueViolation = "23505"

// MappingRepository defines the interface for mapping persistence. The
// store's unique constraint on short_code is the single source of truth for
// code collisions; CodeExists is an optimization, not a guarantee.
type MappingRepository interface {
	Insert(ctx context.Context, m *model.Mapping) error
	InsertEncoded(ctx context.Context, originalURL string, expiresAt *time.Time, encode func(int64) (string, error)) (*model.Mapping, error)
	FindByCode(ctx context.Context, code string) (*model.Mapping, error)
	FindByURL(ctx context.Context, url string) (*model.Mapping, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]model.Mapping, error)
	DeleteByCode(ctx context.Context, code string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PostgresMappingRepository implements MappingRepository using PostgreSQL
type PostgresMappingRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresMappingRepository creates a new PostgresMappingRepository
func NewPostgresMappingRepository(db *pgxpool.Pool) *PostgresMappingRepository {
	return &PostgresMappingRepository{
		db:     db,
		logger: zap.L().With(zap.String("component", "PostgresMappingRepository")),
	}
}

// Insert persists a new mapping with a pre-generated short code. A collision
// with a concurrently inserted code surfaces as ErrCodeTaken.
func (r *PostgresMappingRepository) Insert(ctx context.Context, m *model.Mapping) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx,
		`INSERT INTO mappings (original_url, short_code, expiration_time)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		m.OriginalURL, m.ShortCode, m.ExpirationTime,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Warn("Short code collision on insert", zap.String("short_code", m.ShortCode))
			return ErrCodeTaken
		}
		r.logger.Error("Failed to insert mapping", zap.Error(err), zap.String("short_code", m.ShortCode))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return nil
}

// InsertEncoded persists a mapping whose short code is derived from its row
// id. The insert and the code update run in one transaction; if the encoder
// rejects the id the transaction rolls back and no row becomes visible.
func (r *PostgresMappingRepository) InsertEncoded(ctx context.Context, originalURL string, expiresAt *time.Time, encode func(int64) (string, error)) (*model.Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback(ctx)

	m := &model.Mapping{OriginalURL: originalURL, ExpirationTime: expiresAt}
	err = tx.QueryRow(ctx,
		`INSERT INTO mappings (original_url, expiration_time)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		originalURL, expiresAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to reserve mapping id", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	code, err := encode(m.ID)
	if err != nil {
		return nil, err
	}
	m.ShortCode = code

	if _, err := tx.Exec(ctx, `UPDATE mappings SET short_code = $1 WHERE id = $2`, code, m.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCodeTaken
		}
		r.logger.Error("Failed to assign short code", zap.Error(err), zap.Int64("id", m.ID))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return m, nil
}

// FindByCode retrieves a mapping by exact short code match
func (r *PostgresMappingRepository) FindByCode(ctx context.Context, code string) (*model.Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	m := &model.Mapping{}
	err := r.db.QueryRow(ctx,
		`SELECT id, original_url, short_code, created_at, expiration_time
		 FROM mappings WHERE short_code = $1`,
		code,
	).Scan(&m.ID, &m.OriginalURL, &m.ShortCode, &m.CreatedAt, &m.ExpirationTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Mapping not found", zap.String("short_code", code))
			return nil, ErrMappingNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("short_code", code))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return m, nil
}

// FindByURL retrieves the mapping for a given normalized URL, if any
func (r *PostgresMappingRepository) FindByURL(ctx context.Context, url string) (*model.Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	m := &model.Mapping{}
	err := r.db.QueryRow(ctx,
		`SELECT id, original_url, short_code, created_at, expiration_time
		 FROM mappings WHERE original_url = $1 AND short_code IS NOT NULL
		 ORDER BY id LIMIT 1`,
		url,
	).Scan(&m.ID, &m.OriginalURL, &m.ShortCode, &m.CreatedAt, &m.ExpirationTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("url", url))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return m, nil
}

// CodeExists checks if a given short code already exists in the database
func (r *PostgresMappingRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM mappings WHERE short_code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check code existence", zap.Error(err), zap.String("short_code", code))
		return false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return exists, nil
}

// List returns all mappings that have been assigned a short code
func (r *PostgresMappingRepository) List(ctx context.Context) ([]model.Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx,
		`SELECT id, original_url, short_code, created_at, expiration_time
		 FROM mappings WHERE short_code IS NOT NULL
		 ORDER BY created_at DESC`)
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var mappings []model.Mapping
	for rows.Next() {
		var m model.Mapping
		if err := rows.Scan(&m.ID, &m.OriginalURL, &m.ShortCode, &m.CreatedAt, &m.ExpirationTime); err != nil {
			r.logger.Error("Failed to scan mapping row", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return mappings, nil
}

// DeleteByCode removes the mapping if present and reports whether a row was
// removed
func (r *PostgresMappingRepository) DeleteByCode(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM mappings WHERE short_code = $1`, code)
	if err != nil {
		r.logger.Error("Failed to delete mapping", zap.Error(err), zap.String("short_code", code))
		return false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteExpired removes all mappings whose expiration time is strictly before
// now and returns the number of rows removed
func (r *PostgresMappingRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		`DELETE FROM mappings WHERE expiration_time IS NOT NULL AND expiration_time < $1`, now)
	if err != nil {
		r.logger.Error("Failed to delete expired mappings", zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
