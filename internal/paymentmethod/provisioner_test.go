package paymentmethod

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/client"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/logger"
)

// fakeAPI stores payment methods in memory. createDelay widens the window
// between list and create so races would surface.
type fakeAPI struct {
	mu          sync.Mutex
	methods     map[string][]domain.PaymentMethodInstance
	creates     int
	createDelay time.Duration
	createErr   error
	listErr     error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{methods: map[string][]domain.PaymentMethodInstance{}}
}

func (f *fakeAPI) ListPaymentMethods(_ context.Context, entityID string, filter domain.PaymentMethodFilter) ([]domain.PaymentMethodInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.PaymentMethodInstance
	for _, m := range f.methods[entityID] {
		if filter.Matches(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeAPI) CreatePaymentMethod(_ context.Context, entityID string, spec domain.PaymentMethodSpec) (*domain.PaymentMethodInstance, error) {
	time.Sleep(f.createDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.creates++
	inst := domain.PaymentMethodInstance{ID: fmt.Sprintf("pm_%d", f.creates), EntityID: entityID, Type: spec.Type}
	f.methods[entityID] = append(f.methods[entityID], inst)
	return &inst, nil
}

func (f *fakeAPI) count(entityID string, t domain.PaymentMethodType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods[entityID] {
		if m.Type == t {
			n++
		}
	}
	return n
}

func TestEnsureOffPlatformIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	p := NewProvisioner(api, nil, logger.Nop())
	ctx := context.Background()

	first, err := p.EnsureOffPlatform(ctx, "ent_1", domain.RoleSource)
	require.NoError(t, err)
	second, err := p.EnsureOffPlatform(ctx, "ent_1", domain.RoleDestination)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, api.count("ent_1", domain.PaymentMethodOffPlatform))
}

func TestEnsureOffPlatformConcurrentCallers(t *testing.T) {
	lockers := map[string]func(t *testing.T) Locker{
		"memory": func(*testing.T) Locker { return NewMemoryLocker() },
		"redis": func(t *testing.T) Locker {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisLocker(client, 5*time.Second, 5*time.Second)
		},
	}
	for name, mk := range lockers {
		t.Run(name, func(t *testing.T) {
			api := newFakeAPI()
			api.createDelay = 20 * time.Millisecond
			p := NewProvisioner(api, mk(t), logger.Nop())

			var wg sync.WaitGroup
			ids := make([]string, 8)
			errs := make([]error, 8)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					inst, err := p.EnsureOffPlatform(context.Background(), "ent_1", domain.RoleSource)
					errs[i] = err
					if inst != nil {
						ids[i] = inst.ID
					}
				}(i)
			}
			wg.Wait()

			for i := range ids {
				require.NoError(t, errs[i])
				assert.Equal(t, ids[0], ids[i])
			}
			assert.Equal(t, 1, api.count("ent_1", domain.PaymentMethodOffPlatform))
		})
	}
}

func TestEnsureOffPlatformAcceptsAlreadyExists(t *testing.T) {
	api := newFakeAPI()
	api.createErr = apperrors.AlreadyExists("off-platform method exists")
	// Another writer created it between our list and create.
	p := NewProvisioner(&racingAPI{fakeAPI: api}, nil, logger.Nop())

	inst, err := p.EnsureOffPlatform(context.Background(), "ent_1", domain.RoleSource)
	require.NoError(t, err)
	assert.Equal(t, "pm_other", inst.ID)
}

// racingAPI inserts an instance on the first create, then reports a conflict.
type racingAPI struct {
	*fakeAPI
}

func (r *racingAPI) CreatePaymentMethod(ctx context.Context, entityID string, spec domain.PaymentMethodSpec) (*domain.PaymentMethodInstance, error) {
	r.mu.Lock()
	r.methods[entityID] = append(r.methods[entityID], domain.PaymentMethodInstance{ID: "pm_other", Type: domain.PaymentMethodOffPlatform})
	r.mu.Unlock()
	return r.fakeAPI.CreatePaymentMethod(ctx, entityID, spec)
}

func TestEnsureOffPlatformAcceptsPlainConflictOverREST(t *testing.T) {
	var lists atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/entities/ven_1/payment-methods", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			if lists.Add(1) == 1 {
				w.Write([]byte(`{"paymentMethods":[]}`))
				return
			}
			w.Write([]byte(`{"paymentMethods":[{"id":"pm_winner","entityId":"ven_1","type":"offPlatform"}]}`))
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"payment method already exists"}`))
		}
	}))
	defer srv.Close()

	api := client.NewRESTClient(srv.URL, "token", time.Second, logger.Nop())
	p := NewProvisioner(api, nil, logger.Nop())

	inst, err := p.EnsureOffPlatform(context.Background(), "ven_1", domain.RoleDestination)
	require.NoError(t, err)
	assert.Equal(t, "pm_winner", inst.ID)
	assert.Equal(t, int32(2), lists.Load())
}

func TestEnsureOffPlatformConflictWithoutInstanceFails(t *testing.T) {
	api := newFakeAPI()
	api.createErr = apperrors.StaleTransition("conflict")
	p := NewProvisioner(api, nil, logger.Nop())

	_, err := p.EnsureOffPlatform(context.Background(), "ent_1", domain.RoleSource)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternal))
}

func TestEnsureOffPlatformSurfacesExternalFailures(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("connection refused")
	p := NewProvisioner(api, nil, logger.Nop())

	_, err := p.EnsureOffPlatform(context.Background(), "ent_1", domain.RoleSource)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternal))

	api.listErr = nil
	api.createErr = errors.New("boom")
	_, err = p.EnsureOffPlatform(context.Background(), "ent_1", domain.RoleSource)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternal))
}

func TestResolveRunsSideEffects(t *testing.T) {
	api := newFakeAPI()
	p := NewProvisioner(api, nil, logger.Nop())
	in := SelectInput{
		Role:     domain.RoleSource,
		EntityID: "ent_1",
		Org: domain.OrganizationConfig{PaymentMethodPolicies: domain.PaymentMethodPolicies{
			SourceTypes: []domain.PaymentMethodType{domain.PaymentMethodOffPlatform},
		}},
	}

	sel, instances, err := p.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "pm_1", sel.InstanceID)
	assert.False(t, sel.Pending())
	require.Len(t, instances, 1)

	in.Instances = instances
	again, _, err := p.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "pm_1", again.InstanceID)
	assert.Equal(t, 1, api.count("ent_1", domain.PaymentMethodOffPlatform))
}

func TestRedisLockerTimesOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	locker := NewRedisLocker(client, time.Minute, 100*time.Millisecond)
	release, err := locker.Acquire(ctx, LockKey("ent_1"))
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, LockKey("ent_1"))
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(LockKey("ent_1")))

	release, err = locker.Acquire(ctx, LockKey("ent_1"))
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker()
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, release(context.Background()))
	require.NoError(t, release(context.Background()))
}
