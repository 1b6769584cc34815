package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortly/config"
	"github.com/fonsecaaso/shortly/internal/codegen"
	"github.com/fonsecaaso/shortly/internal/model"
	"github.com/fonsecaaso/shortly/internal/repository"
)

// MockMappingRepository is a mock implementation of MappingRepository
type MockMappingRepository struct {
	mock.Mock
}

func (m *MockMappingRepository) Insert(ctx context.Context, mapping *model.Mapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockMappingRepository) InsertEncoded(ctx context.Context, originalURL string, expiresAt *time.Time, encode func(int64) (string, error)) (*model.Mapping, error) {
	args := m.Called(ctx, originalURL, expiresAt, encode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Mapping), args.Error(1)
}

func (m *MockMappingRepository) FindByCode(ctx context.Context, code string) (*model.Mapping, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Mapping), args.Error(1)
}

func (m *MockMappingRepository) FindByURL(ctx context.Context, url string) (*model.Mapping, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Mapping), args.Error(1)
}

func (m *MockMappingRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockMappingRepository) List(ctx context.Context) ([]model.Mapping, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Mapping), args.Error(1)
}

func (m *MockMappingRepository) DeleteByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockMappingRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		CodeLength:   6,
		CodeAlphabet: codegen.Base62Alphabet,
		CodeMaxWidth: 10,
		CodeStrategy: config.StrategyRandom,
	}
}

func setupService(t *testing.T, cfg *config.Config) (*MappingService, *MockMappingRepository) {
	// Initialize logger for tests
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	mockRepo := new(MockMappingRepository)
	service := NewMappingService(mockRepo, cfg)

	return service, mockRepo
}

func intPtr(n int) *int { return &n }

func TestNewMappingService(t *testing.T) {
	mockRepo := new(MockMappingRepository)
	service := NewMappingService(mockRepo, testConfig())

	assert.NotNil(t, service)
	assert.NotNil(t, service.repo)
	assert.NotNil(t, service.logger)
}

func TestShorten_Success_NewURL(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
	mockRepo.On("Insert", ctx, mock.AnythingOfType("*model.Mapping")).
		Run(func(args mock.Arguments) {
			m := args.Get(1).(*model.Mapping)
			m.ID = 1
			m.CreatedAt = time.Now()
		}).
		Return(nil)

	mapping, isNew, err := service.Shorten(ctx, "https://example.com", nil)

	assert.NoError(t, err)
	assert.True(t, isNew)
	assert.Len(t, mapping.ShortCode, 6)
	assert.Equal(t, "https://example.com", mapping.OriginalURL)
	assert.Nil(t, mapping.ExpirationTime)
	mockRepo.AssertExpectations(t)
}

func TestShorten_Idempotent(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	existing := &model.Mapping{
		ID:          7,
		OriginalURL: "https://example.com",
		ShortCode:   "xyz789",
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	mockRepo.On("FindByURL", ctx, "https://example.com").Return(existing, nil)

	mapping, isNew, err := service.Shorten(ctx, "https://example.com", nil)

	assert.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, existing, mapping)
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

// Idempotent creation does not re-check expiry: an already-expired mapping is
// handed back unchanged. Read-time expiry is a separate policy.
func TestShorten_IdempotentReturnsExpiredMapping(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	existing := &model.Mapping{
		ID:             7,
		OriginalURL:    "https://example.com",
		ShortCode:      "xyz789",
		ExpirationTime: &past,
	}
	mockRepo.On("FindByURL", ctx, "https://example.com").Return(existing, nil)

	mapping, isNew, err := service.Shorten(ctx, "https://example.com", nil)

	assert.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, existing, mapping)
	mockRepo.AssertExpectations(t)
}

func TestShorten_InvalidURL(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	testCases := []struct {
		name string
		url  string
	}{
		{"empty URL", ""},
		{"invalid format", "not a valid url"},
		{"missing host", "http://"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := service.Shorten(ctx, tc.url, nil)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
	mockRepo.AssertNotCalled(t, "FindByURL", mock.Anything, mock.Anything)
}

func TestShorten_NormalizesBeforeLookup(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mockRepo.On("FindByURL", ctx, "http://example.com/a").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
	mockRepo.On("Insert", ctx, mock.MatchedBy(func(m *model.Mapping) bool {
		return m.OriginalURL == "http://example.com/a"
	})).Return(nil)

	mapping, isNew, err := service.Shorten(ctx, "example.com/a", nil)

	assert.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "http://example.com/a", mapping.OriginalURL)
	mockRepo.AssertExpectations(t)
}

func TestShorten_ExplicitTTL(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
	mockRepo.On("Insert", ctx, mock.AnythingOfType("*model.Mapping")).Return(nil)

	mapping, _, err := service.Shorten(ctx, "https://example.com", intPtr(90))

	assert.NoError(t, err)
	assert.NotNil(t, mapping.ExpirationTime)
	assert.Equal(t, now.Add(90*time.Minute), *mapping.ExpirationTime)
	mockRepo.AssertExpectations(t)
}

func TestShorten_DefaultTTL(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultTTLMin = 1440
	service, mockRepo := setupService(t, cfg)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
	mockRepo.On("Insert", ctx, mock.AnythingOfType("*model.Mapping")).Return(nil)

	mapping, _, err := service.Shorten(ctx, "https://example.com", nil)

	assert.NoError(t, err)
	assert.NotNil(t, mapping.ExpirationTime)
	assert.Equal(t, now.Add(24*time.Hour), *mapping.ExpirationTime)
	mockRepo.AssertExpectations(t)
}

func TestShorten_ExplicitTTLOverridesDefault(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultTTLMin = 1440
	service, mockRepo := setupService(t, cfg)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
	mockRepo.On("Insert", ctx, mock.AnythingOfType("*model.Mapping")).Return(nil)

	mapping, _, err := service.Shorten(ctx, "https://example.com", intPtr(1))

	assert.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), *mapping.ExpirationTime)
	mockRepo.AssertExpectations(t)
}

func TestShorten_CollisionRetriesOnce(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
	// First insert loses the race, the retry succeeds.
	mockRepo.On("Insert", ctx, mock.AnythingOfType("*model.Mapping")).
		Return(repository.ErrCodeTaken).Once()
	mockRepo.On("Insert", ctx, mock.AnythingOfType("*model.Mapping")).
		Return(nil).Once()

	mapping, isNew, err := service.Shorten(ctx, "https://example.com", nil)

	assert.NoError(t, err)
	assert.True(t, isNew)
	assert.Len(t, mapping.ShortCode, 6)
	mockRepo.AssertExpectations(t)
}

func TestShorten_RepeatedCollisionFails(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil)
	mockRepo.On("Insert", ctx, mock.AnythingOfType("*model.Mapping")).
		Return(repository.ErrCodeTaken).Times(2)

	_, _, err := service.Shorten(ctx, "https://example.com", nil)

	assert.ErrorIs(t, err, ErrAllocationFailed)
	mockRepo.AssertExpectations(t)
}

func TestShorten_CodeSpaceExhausted(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	// Every drawn code already exists.
	mockRepo.On("CodeExists", ctx, mock.AnythingOfType("string")).
		Return(true, nil).Times(maxCodeGenerationAttempts)

	_, _, err := service.Shorten(ctx, "https://example.com", nil)

	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestShorten_RepositoryError(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	dbError := errors.New("database connection failed")
	mockRepo.On("FindByURL", ctx, "https://example.com").Return(nil, dbError)

	_, _, err := service.Shorten(ctx, "https://example.com", nil)

	assert.Error(t, err)
	assert.Equal(t, dbError, err)
	mockRepo.AssertExpectations(t)
}

func TestShorten_Base62Strategy(t *testing.T) {
	cfg := testConfig()
	cfg.CodeStrategy = config.StrategyBase62
	service, mockRepo := setupService(t, cfg)
	ctx := context.Background()

	created := &model.Mapping{
		ID:          125,
		OriginalURL: "https://example.com",
		ShortCode:   "21",
		CreatedAt:   time.Now(),
	}
	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("InsertEncoded", ctx, "https://example.com", (*time.Time)(nil), mock.Anything).
		Run(func(args mock.Arguments) {
			// The encoder handed to the repository must produce canonical
			// base62 codes.
			encode := args.Get(3).(func(int64) (string, error))
			code, err := encode(125)
			assert.NoError(t, err)
			assert.Equal(t, "21", code)
		}).
		Return(created, nil)

	mapping, isNew, err := service.Shorten(ctx, "https://example.com", nil)

	assert.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "21", mapping.ShortCode)
	mockRepo.AssertNotCalled(t, "CodeExists", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestShorten_Base62StrategyWidthOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.CodeStrategy = config.StrategyBase62
	service, mockRepo := setupService(t, cfg)
	ctx := context.Background()

	mockRepo.On("FindByURL", ctx, "https://example.com").
		Return(nil, repository.ErrMappingNotFound)
	mockRepo.On("InsertEncoded", ctx, "https://example.com", (*time.Time)(nil), mock.Anything).
		Return(nil, codegen.ErrCodeSpaceExhausted)

	_, _, err := service.Shorten(ctx, "https://example.com", nil)

	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
	mockRepo.AssertExpectations(t)
}

func TestResolve_Success(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mapping := &model.Mapping{
		ID:          1,
		OriginalURL: "https://example.com",
		ShortCode:   "abc123",
		CreatedAt:   time.Now(),
	}
	mockRepo.On("FindByCode", ctx, "abc123").Return(mapping, nil)

	got, err := service.Resolve(ctx, "abc123")

	assert.NoError(t, err)
	assert.Equal(t, mapping, got)
	mockRepo.AssertExpectations(t)
}

func TestResolve_NotFound(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mockRepo.On("FindByCode", ctx, "abc123").Return(nil, repository.ErrMappingNotFound)

	_, err := service.Resolve(ctx, "abc123")

	assert.ErrorIs(t, err, ErrMappingNotFound)
	mockRepo.AssertExpectations(t)
}

func TestResolve_Expired(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	mapping := &model.Mapping{
		ID:             1,
		OriginalURL:    "https://example.com",
		ShortCode:      "abc123",
		ExpirationTime: &past,
	}
	mockRepo.On("FindByCode", ctx, "abc123").Return(mapping, nil)

	// Logical expiry: the row still exists, resolution reports not found.
	_, err := service.Resolve(ctx, "abc123")

	assert.ErrorIs(t, err, ErrMappingNotFound)
	mockRepo.AssertExpectations(t)
}

func TestResolve_ExpiresInFuture(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	future := time.Now().Add(time.Minute)
	mapping := &model.Mapping{
		ID:             1,
		OriginalURL:    "https://example.com",
		ShortCode:      "abc123",
		ExpirationTime: &future,
	}
	mockRepo.On("FindByCode", ctx, "abc123").Return(mapping, nil)

	got, err := service.Resolve(ctx, "abc123")

	assert.NoError(t, err)
	assert.Equal(t, mapping, got)
	mockRepo.AssertExpectations(t)
}

func TestResolve_ExpiryBoundary(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := created.Add(time.Minute)
	mapping := &model.Mapping{
		ID:             1,
		OriginalURL:    "https://example.com",
		ShortCode:      "abc123",
		CreatedAt:      created,
		ExpirationTime: &expires,
	}
	mockRepo.On("FindByCode", ctx, "abc123").Return(mapping, nil)

	// Immediately after creation the mapping resolves.
	service.now = func() time.Time { return created.Add(time.Second) }
	_, err := service.Resolve(ctx, "abc123")
	assert.NoError(t, err)

	// Once the clock passes the expiration it does not, even unswept.
	service.now = func() time.Time { return expires.Add(time.Second) }
	_, err = service.Resolve(ctx, "abc123")
	assert.ErrorIs(t, err, ErrMappingNotFound)
	mockRepo.AssertExpectations(t)
}

func TestResolve_CorruptStoredURL(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mapping := &model.Mapping{
		ID:          1,
		OriginalURL: "corrupted data",
		ShortCode:   "abc123",
	}
	mockRepo.On("FindByCode", ctx, "abc123").Return(mapping, nil)

	_, err := service.Resolve(ctx, "abc123")

	assert.ErrorIs(t, err, ErrMappingNotFound)
	mockRepo.AssertExpectations(t)
}

func TestResolve_RepositoryError(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	dbError := errors.New("database connection failed")
	mockRepo.On("FindByCode", ctx, "abc123").Return(nil, dbError)

	_, err := service.Resolve(ctx, "abc123")

	assert.Error(t, err)
	assert.Equal(t, dbError, err)
	mockRepo.AssertExpectations(t)
}

func TestDelete(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mockRepo.On("DeleteByCode", ctx, "abc123").Return(true, nil)
	mockRepo.On("DeleteByCode", ctx, "nosuch").Return(false, nil)

	deleted, err := service.Delete(ctx, "abc123")
	assert.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = service.Delete(ctx, "nosuch")
	assert.NoError(t, err)
	assert.False(t, deleted)
	mockRepo.AssertExpectations(t)
}

func TestSweepExpired(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	mockRepo.On("DeleteExpired", ctx, now).Return(int64(3), nil).Once()
	mockRepo.On("DeleteExpired", ctx, now).Return(int64(0), nil).Once()

	count, err := service.SweepExpired(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Idempotent: nothing new expired, so the second sweep removes nothing.
	count, err = service.SweepExpired(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
	mockRepo.AssertExpectations(t)
}

func TestList(t *testing.T) {
	service, mockRepo := setupService(t, testConfig())
	ctx := context.Background()

	mappings := []model.Mapping{
		{ID: 1, OriginalURL: "https://example.com", ShortCode: "abc123"},
		{ID: 2, OriginalURL: "https://example.org", ShortCode: "def456"},
	}
	mockRepo.On("List", ctx).Return(mappings, nil)

	got, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Equal(t, mappings, got)
	mockRepo.AssertExpectations(t)
}
