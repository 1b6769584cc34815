package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fonsecaaso/shortly/config"
	"github.com/fonsecaaso/shortly/internal/codegen"
	"github.com/fonsecaaso/shortly/internal/metrics"
	"github.com/fonsecaaso/shortly/internal/model"
	"github.com/fonsecaaso/shortly/internal/normalize"
	"github.com/fonsecaaso/shortly/internal/repository"
)

var (
	ErrInvalidURL         = normalize.ErrInvalidURL
	ErrCodeSpaceExhausted = codegen.ErrCodeSpaceExhausted
	ErrMappingNotFound    = repository.ErrMappingNotFound
	ErrAllocationFailed   = errors.New("failed to allocate a unique short code")
)

// maxCodeGenerationAttempts bounds the random draw loop. Hitting the bound
// surfaces ErrCodeSpaceExhausted and increments a counter instead of looping
// silently.
const maxCodeGenerationAttempts = 100

// MappingService implements short code allocation and resolution on top of a
// MappingRepository. It is stateless between requests; uniqueness under
// concurrent creation rests on the store's unique constraint, not on the
// advisory existence checks made here.
type MappingService struct {
	repo   repository.MappingRepository
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewMappingService creates a new MappingService
func NewMappingService(repo repository.MappingRepository, cfg *config.Config) *MappingService {
	return &MappingService{
		repo:   repo,
		cfg:    cfg,
		logger: zap.L().With(zap.String("component", "MappingService")),
		now:    time.Now,
	}
}

// Shorten normalizes and validates a raw URL, then returns its mapping. A URL
// that was already shortened returns the existing mapping unchanged, whatever
// its expiry state; creation idempotency and read-time expiry are independent
// policies. The second return value reports whether a new mapping was created.
func (s *MappingService) Shorten(ctx context.Context, rawURL string, ttlMinutes *int) (*model.Mapping, bool, error) {
	normalized, err := normalize.Normalize(rawURL)
	if err != nil {
		metrics.MappingCreationTotal.WithLabelValues("invalid_url").Inc()
		return nil, false, err
	}

	existing, err := s.repo.FindByURL(ctx, normalized)
	if err == nil {
		s.logger.Info("URL already shortened, returning existing mapping",
			zap.String("short_code", existing.ShortCode),
			zap.String("url", normalized))
		metrics.MappingCreationTotal.WithLabelValues("existing").Inc()
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrMappingNotFound) {
		metrics.MappingCreationTotal.WithLabelValues("failed").Inc()
		return nil, false, err
	}

	expiresAt := s.expirationFor(ttlMinutes)

	var m *model.Mapping
	switch s.cfg.CodeStrategy {
	case config.StrategyBase62:
		m, err = s.allocateEncoded(ctx, normalized, expiresAt)
	default:
		m, err = s.allocateRandom(ctx, normalized, expiresAt)
	}
	if err != nil {
		metrics.MappingCreationTotal.WithLabelValues("failed").Inc()
		return nil, false, err
	}

	s.logger.Info("New mapping created",
		zap.String("short_code", m.ShortCode),
		zap.String("url", m.OriginalURL))
	metrics.MappingCreationTotal.WithLabelValues("created").Inc()
	return m, true, nil
}

// allocateRandom draws a code, then inserts. Losing the insert race against a
// concurrent creation using the same code is retried exactly once with a
// fresh code before giving up.
func (s *MappingService) allocateRandom(ctx context.Context, url string, expiresAt *time.Time) (*model.Mapping, error) {
	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	m := &model.Mapping{OriginalURL: url, ShortCode: code, ExpirationTime: expiresAt}
	err = s.repo.Insert(ctx, m)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, repository.ErrCodeTaken) {
		return nil, err
	}

	metrics.CodeAllocationRetriesTotal.Inc()
	s.logger.Warn("Lost insert race on short code, retrying once", zap.String("short_code", code))

	code, err = s.generateUniqueCode(ctx)
	if err != nil {
		return nil, err
	}
	m = &model.Mapping{OriginalURL: url, ShortCode: code, ExpirationTime: expiresAt}
	err = s.repo.Insert(ctx, m)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, repository.ErrCodeTaken) {
		s.logger.Error("Repeated short code collision", zap.String("short_code", code))
		return nil, ErrAllocationFailed
	}
	return nil, err
}

// allocateEncoded reserves a row id and derives the code from it inside one
// transaction. Uniqueness holds by construction, so there is no retry; an id
// that no longer fits the code width fails the allocation.
func (s *MappingService) allocateEncoded(ctx context.Context, url string, expiresAt *time.Time) (*model.Mapping, error) {
	m, err := s.repo.InsertEncoded(ctx, url, expiresAt, func(id int64) (string, error) {
		return codegen.EncodeID(id, s.cfg.CodeMaxWidth)
	})
	if err != nil {
		if errors.Is(err, codegen.ErrCodeSpaceExhausted) {
			metrics.CodeSpaceExhaustedTotal.Inc()
			s.logger.Error("Id range exceeds maximum code width", zap.Error(err))
		}
		return nil, err
	}
	return m, nil
}

// generateUniqueCode draws random codes until one is free. The existence
// check only reduces wasted writes; the store's unique constraint remains the
// authoritative collision signal.
func (s *MappingService) generateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeGenerationAttempts; attempt++ {
		code := codegen.RandomCode(s.cfg.CodeAlphabet, s.cfg.CodeLength)
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	metrics.CodeSpaceExhaustedTotal.Inc()
	s.logger.Error("No free short code found",
		zap.Int("attempts", maxCodeGenerationAttempts),
		zap.Int("code_length", s.cfg.CodeLength))
	return "", ErrCodeSpaceExhausted
}

// Resolve looks up a short code and returns the mapping if it is active. An
// expired mapping, and a stored URL that no longer validates, are both
// reported as not found; the caller cannot distinguish them from a code that
// never existed.
func (s *MappingService) Resolve(ctx context.Context, code string) (*model.Mapping, error) {
	m, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			metrics.MappingResolveTotal.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	if m.Expired(s.now()) {
		s.logger.Debug("Mapping expired", zap.String("short_code", code))
		metrics.MappingResolveTotal.WithLabelValues("expired").Inc()
		return nil, repository.ErrMappingNotFound
	}

	if !normalize.Valid(m.OriginalURL) {
		s.logger.Warn("Stored URL no longer validates",
			zap.String("short_code", code),
			zap.String("url", m.OriginalURL))
		metrics.MappingResolveTotal.WithLabelValues("invalid_stored_url").Inc()
		return nil, repository.ErrMappingNotFound
	}

	metrics.MappingResolveTotal.WithLabelValues("hit").Inc()
	return m, nil
}

// List returns all mappings
func (s *MappingService) List(ctx context.Context) ([]model.Mapping, error) {
	return s.repo.List(ctx)
}

// Delete removes the mapping for a code and reports whether one was removed
func (s *MappingService) Delete(ctx context.Context, code string) (bool, error) {
	deleted, err := s.repo.DeleteByCode(ctx, code)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("Mapping deleted", zap.String("short_code", code))
	}
	return deleted, nil
}

// SweepExpired purges mappings whose expiration time has passed and returns
// the number of rows removed. Expired rows are already invisible to Resolve,
// so sweeping is cleanup, not a correctness requirement.
func (s *MappingService) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("Swept expired mappings", zap.Int64("count", count))
	}
	metrics.ExpiredMappingsSweptTotal.Add(float64(count))
	return count, nil
}

func (s *MappingService) expirationFor(ttlMinutes *int) *time.Time {
	switch {
	case ttlMinutes != nil && *ttlMinutes > 0:
		t := s.now().Add(time.Duration(*ttlMinutes) * time.Minute)
		return &t
	case s.cfg.DefaultTTLMin > 0:
		t := s.now().Add(time.Duration(s.cfg.DefaultTTLMin) * time.Minute)
		return &t
	default:
		return nil
	}
}
