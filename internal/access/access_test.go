package access

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naman3006/E-commerce-sub001/internal/catalog"
	catalogmemory "github.com/naman3006/E-commerce-sub001/internal/catalog/memory"
	"github.com/naman3006/E-commerce-sub001/internal/domain"
	"github.com/naman3006/E-commerce-sub001/internal/repository/memory"
	"github.com/naman3006/E-commerce-sub001/internal/service"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

// --- Mock Engine ---

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) GetSnapshot(ctx context.Context, ownerID string) (domain.Snapshot, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(domain.Snapshot), args.Error(1)
}

func (m *mockEngine) result(args mock.Arguments) (*domain.Result, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Result), args.Error(1)
}

func (m *mockEngine) AddItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Result, error) {
	return m.result(m.Called(ctx, ownerID, productID, quantity))
}

func (m *mockEngine) UpdateItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Result, error) {
	return m.result(m.Called(ctx, ownerID, productID, quantity))
}

func (m *mockEngine) RemoveItem(ctx context.Context, ownerID, productID string) (*domain.Result, error) {
	return m.result(m.Called(ctx, ownerID, productID))
}

func (m *mockEngine) ClearCart(ctx context.Context, ownerID string) (*domain.Result, error) {
	return m.result(m.Called(ctx, ownerID))
}

func (m *mockEngine) ValidateCart(ctx context.Context, ownerID string) (*domain.Result, error) {
	return m.result(m.Called(ctx, ownerID))
}

func (m *mockEngine) MergeCarts(ctx context.Context, fromOwner, toOwner string) (*domain.Result, error) {
	return m.result(m.Called(ctx, fromOwner, toOwner))
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(engine Engine, attempts int) *Service {
	svc := NewService(engine, newTestLogger(), attempts)
	svc.backoff = func(int) time.Duration { return 0 }
	return svc
}

func conflict(owner string) error {
	return domain.ConcurrentModification(owner, 1)
}

// ============================================================================
// Scope Tests
// ============================================================================

func TestScope_Authorize(t *testing.T) {
	tests := []struct {
		name     string
		scope    Scope
		sentinel error
	}{
		{"self", Self("user-1"), nil},
		{"anonymous self", Self("anon:s1"), nil},
		{"admin on any owner", Admin("admin-1", "user-2"), nil},
		{"no actor", Scope{OwnerID: "user-1"}, apperrors.ErrUnauthorized},
		{"no owner", Scope{ActorID: "admin-1", Admin: true}, apperrors.ErrInvalidInput},
		{"other owner without admin", Scope{OwnerID: "user-2", ActorID: "user-1"}, apperrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.authorize()
			if tt.sentinel == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestService_ForbiddenScopeNeverReachesEngine(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 3)

	_, err := svc.ClearCart(context.Background(), Scope{OwnerID: "user-2", ActorID: "user-1"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.GetCart(context.Background(), Scope{OwnerID: "user-2", ActorID: "user-1"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	engine.AssertNotCalled(t, "ClearCart", mock.Anything, mock.Anything)
	engine.AssertNotCalled(t, "GetSnapshot", mock.Anything, mock.Anything)
}

// ============================================================================
// Retry Tests
// ============================================================================

func TestService_RetriesConflictThenSucceeds(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 3)
	ctx := context.Background()
	want := &domain.Result{Cart: domain.NewCart("user-1")}

	before := testutil.ToFloat64(conflictRetriesTotal.WithLabelValues("add_item"))

	engine.On("AddItem", ctx, "user-1", "p1", 1).Return(nil, conflict("user-1")).Once()
	engine.On("AddItem", ctx, "user-1", "p1", 1).Return(want, nil).Once()

	got, err := svc.AddItem(ctx, Self("user-1"), "p1", 1)
	require.NoError(t, err)
	assert.Same(t, want, got)
	engine.AssertNumberOfCalls(t, "AddItem", 2)

	after := testutil.ToFloat64(conflictRetriesTotal.WithLabelValues("add_item"))
	assert.Equal(t, before+1, after)
}

func TestService_ConflictExhausted(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 3)
	ctx := context.Background()

	before := testutil.ToFloat64(conflictsExhaustedTotal.WithLabelValues("clear_cart"))
	engine.On("ClearCart", ctx, "user-1").Return(nil, conflict("user-1"))

	_, err := svc.ClearCart(ctx, Self("user-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
	engine.AssertNumberOfCalls(t, "ClearCart", 3)

	after := testutil.ToFloat64(conflictsExhaustedTotal.WithLabelValues("clear_cart"))
	assert.Equal(t, before+1, after)
}

func TestService_NonConflictErrorsAreNotRetried(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 3)
	ctx := context.Background()

	engine.On("UpdateItem", ctx, "user-1", "p1", 2).Return(nil, domain.LineNotFound("p1"))

	_, err := svc.UpdateItem(ctx, Self("user-1"), "p1", 2)
	assert.ErrorIs(t, err, domain.ErrLineNotFound)
	engine.AssertNumberOfCalls(t, "UpdateItem", 1)
}

func TestService_SingleAttemptDoesNotRetry(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 1)
	ctx := context.Background()

	engine.On("RemoveItem", ctx, "user-1", "p1").Return(nil, conflict("user-1"))

	_, err := svc.RemoveItem(ctx, Self("user-1"), "p1")
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	engine.AssertNumberOfCalls(t, "RemoveItem", 1)
}

func TestService_CanceledContextStopsRetrying(t *testing.T) {
	engine := new(mockEngine)
	svc := NewService(engine, newTestLogger(), 5)
	svc.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	engine.On("AddItem", ctx, "user-1", "p1", 1).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, conflict("user-1"))

	_, err := svc.AddItem(ctx, Self("user-1"), "p1", 1)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	engine.AssertNumberOfCalls(t, "AddItem", 1)
}

func TestRetryBackoff_Bounds(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := retryBaseWait << attempt
		lo := time.Duration(float64(base) * (1 - retryJitterFraction))
		hi := time.Duration(float64(base) * (1 + retryJitterFraction))
		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
}

// ============================================================================
// Surface Tests
// ============================================================================

func TestService_AdminActsOnAnyOwner(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 3)
	ctx := context.Background()

	snap := domain.NewSnapshot(domain.NewCart("user-9"))
	engine.On("GetSnapshot", ctx, "user-9").Return(snap, nil)
	engine.On("ClearCart", ctx, "user-9").Return(&domain.Result{Cart: domain.NewCart("user-9")}, nil)

	got, err := svc.GetCart(ctx, Admin("admin-1", "user-9"))
	require.NoError(t, err)
	assert.Equal(t, "user-9", got.Cart.OwnerID)

	_, err = svc.ClearCart(ctx, Admin("admin-1", "user-9"))
	require.NoError(t, err)
	engine.AssertExpectations(t)
}

func TestService_MergeSession(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 3)
	ctx := context.Background()

	engine.On("MergeCarts", ctx, "anon:sess-1", "user-1").
		Return(&domain.Result{Cart: domain.NewCart("user-1")}, nil)

	_, err := svc.MergeSession(ctx, Self("user-1"), "sess-1")
	require.NoError(t, err)

	_, err = svc.MergeSession(ctx, Self("anon:sess-2"), "sess-1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.MergeSession(ctx, Self("user-1"), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	engine.AssertNumberOfCalls(t, "MergeCarts", 1)
}

func TestService_ValidateCart(t *testing.T) {
	engine := new(mockEngine)
	svc := newTestService(engine, 3)
	ctx := context.Background()

	engine.On("ValidateCart", ctx, "user-1").Return(nil, domain.CatalogUnavailable(errors.New("down"))).Once()

	_, err := svc.ValidateCart(ctx, Self("user-1"))
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	engine.AssertNumberOfCalls(t, "ValidateCart", 1)
}

// ============================================================================
// No lost updates
// ============================================================================

// racingStore makes the first two loads wait for each other, so both callers
// start from the same version and exactly one of them must lose the save.
type racingStore struct {
	*memory.CartRepository
	barrier   sync.WaitGroup
	loads     atomic.Int32
	conflicts atomic.Int32
}

func newRacingStore() *racingStore {
	s := &racingStore{CartRepository: memory.NewCartRepository()}
	s.barrier.Add(2)
	return s
}

func (s *racingStore) Load(ctx context.Context, ownerID string) (*domain.Cart, error) {
	cart, err := s.CartRepository.Load(ctx, ownerID)
	if s.loads.Add(1) <= 2 {
		s.barrier.Done()
		s.barrier.Wait()
	}
	return cart, err
}

func (s *racingStore) Save(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	saved, err := s.CartRepository.Save(ctx, cart)
	if errors.Is(err, domain.ErrConcurrentModification) {
		s.conflicts.Add(1)
	}
	return saved, err
}

type nopPublisher struct{}

func (nopPublisher) PublishCartUpdated(context.Context, *domain.Cart) error { return nil }
func (nopPublisher) PublishCartCleared(context.Context, *domain.Cart) error { return nil }

func TestService_ConcurrentAddsLoseNoUpdates(t *testing.T) {
	store := newRacingStore()
	gw := catalogmemory.NewGateway(catalog.Product{
		ID:     "p1",
		Price:  decimal.RequireFromString("4.00"),
		Stock:  10,
		Active: true,
	})
	engine := service.NewCartService(store, gw, nopPublisher{}, newTestLogger(), time.Second)
	svc := newTestService(engine, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, Self("user-1"), "p1", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), store.conflicts.Load(), "exactly one save loses the race")

	cart, err := store.CartRepository.Load(ctx, "user-1")
	require.NoError(t, err)
	line, ok := cart.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, int64(2), cart.Version)
}
