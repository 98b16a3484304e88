package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	authmocks "github.com/target/storefront-api/internal/mocks/auth"
	"github.com/target/storefront-api/internal/ports"
)

type closableIdentity struct {
	*authmocks.FakeIdentityClient
	mu     sync.Mutex
	closed bool
}

func (c *closableIdentity) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *closableIdentity) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type hubFixture struct {
	caches *authmocks.MemoryCacheFactory
	mu     sync.Mutex
	opened map[string]*closableIdentity
	hub    *ReconcilerHub
}

func newHubFixture(t *testing.T, cfg HubConfig) *hubFixture {
	t.Helper()
	f := &hubFixture{caches: authmocks.NewMemoryCacheFactory(), opened: make(map[string]*closableIdentity)}
	f.hub = NewReconcilerHub(ReconcilerHubOptions{
		Deps: HubDeps{
			Caches:   f.caches,
			Profiles: authmocks.NewStaticProfiles(aliceProfile),
			NewIdentity: func(visitorID string, _ ports.LocalCache) (ports.IdentityClient, error) {
				if visitorID == "broken" {
					return nil, errors.New("backend misconfigured")
				}
				c := &closableIdentity{FakeIdentityClient: &authmocks.FakeIdentityClient{}}
				if visitorID == "signed-in" {
					c.CurrentSessionFunc = func(context.Context) (*domainauth.Identity, error) {
						id := alice
						return &id, nil
					}
				}
				f.mu.Lock()
				f.opened[visitorID] = c
				f.mu.Unlock()
				return c, nil
			},
		},
		Config: cfg,
	})
	t.Cleanup(f.hub.Close)
	return f
}

func (f *hubFixture) identity(id string) *closableIdentity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[id]
}

func TestReconcilerHub_VisitorIsReused(t *testing.T) {
	f := newHubFixture(t, HubConfig{})
	ctx := context.Background()

	v1, err := f.hub.Visitor(ctx, "v-1")
	require.NoError(t, err)
	v2, err := f.hub.Visitor(ctx, "v-1")
	require.NoError(t, err)

	assert.Same(t, v1, v2)
	assert.Equal(t, 1, f.hub.Len())
	assert.Equal(t, 1, f.identity("v-1").Subscribers())
}

func TestReconcilerHub_StartsReconciler(t *testing.T) {
	f := newHubFixture(t, HubConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := f.hub.Visitor(ctx, "signed-in")
	require.NoError(t, err)
	snap, err := v.Reconciler.AwaitResolved(ctx)
	require.NoError(t, err)

	assert.Equal(t, domainauth.StateAuthenticated, snap.State)
	assert.Equal(t, domainauth.RoleAdmin, snap.Session.Role)
	_, cached := f.caches.Visitor("signed-in").Raw(ports.CacheKeyAuth)
	assert.True(t, cached)
}

func TestReconcilerHub_EvictionClosesVisitor(t *testing.T) {
	f := newHubFixture(t, HubConfig{Capacity: 1})
	ctx := context.Background()

	_, err := f.hub.Visitor(ctx, "v-1")
	require.NoError(t, err)
	_, err = f.hub.Visitor(ctx, "v-2")
	require.NoError(t, err)

	assert.Equal(t, 1, f.hub.Len())
	assert.Eventually(t, func() bool {
		id := f.identity("v-1")
		return id.isClosed() && id.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.identity("v-2").isClosed())
}

func TestReconcilerHub_IdleExpiry(t *testing.T) {
	f := newHubFixture(t, HubConfig{IdleTTL: 20 * time.Millisecond})

	_, err := f.hub.Visitor(context.Background(), "v-1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestReconcilerHub_Errors(t *testing.T) {
	f := newHubFixture(t, HubConfig{})
	ctx := context.Background()

	_, err := f.hub.Visitor(ctx, "")
	require.Error(t, err)

	_, err = f.hub.Visitor(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open identity client")

	f.hub.Close()
	_, err = f.hub.Visitor(ctx, "v-1")
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestReconcilerHub_RunClosesOnCancel(t *testing.T) {
	f := newHubFixture(t, HubConfig{})
	_, err := f.hub.Visitor(context.Background(), "v-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.hub.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 0, f.hub.Len())
	assert.True(t, f.identity("v-1").isClosed())
}

func TestReconcilerHub_ConcurrentFirstContactSharesVisitor(t *testing.T) {
	f := newHubFixture(t, HubConfig{})
	ctx := context.Background()

	const callers = 16
	got := make([]*Visitor, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.hub.Visitor(ctx, "v-race")
			assert.NoError(t, err)
			got[i] = v
		}()
	}
	wg.Wait()

	for _, v := range got[1:] {
		assert.Same(t, got[0], v)
	}
	assert.Equal(t, 1, f.hub.Len())
}

// gatedCaches blocks every cache read of one visitor until released.
type gatedCaches struct {
	*authmocks.MemoryCacheFactory
	gated   string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCaches) ForVisitor(visitorID string) ports.LocalCache {
	c := g.MemoryCacheFactory.ForVisitor(visitorID)
	if visitorID != g.gated {
		return c
	}
	return gatedCache{LocalCache: c, gate: g}
}

type gatedCache struct {
	ports.LocalCache
	gate *gatedCaches
}

func (c gatedCache) Read(ctx context.Context, key string) ([]byte, error) {
	c.gate.once.Do(func() { close(c.gate.entered) })
	<-c.gate.release
	return c.LocalCache.Read(ctx, key)
}

func TestReconcilerHub_SlowVisitorDoesNotBlockOthers(t *testing.T) {
	caches := &gatedCaches{
		MemoryCacheFactory: authmocks.NewMemoryCacheFactory(),
		gated:              "slow",
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	hub := NewReconcilerHub(ReconcilerHubOptions{
		Deps: HubDeps{
			Caches:   caches,
			Profiles: authmocks.NewStaticProfiles(aliceProfile),
			NewIdentity: func(string, ports.LocalCache) (ports.IdentityClient, error) {
				return &authmocks.FakeIdentityClient{}, nil
			},
		},
	})
	t.Cleanup(hub.Close)
	var released sync.Once
	releaseGate := func() { released.Do(func() { close(caches.release) }) }
	t.Cleanup(releaseGate)
	ctx := context.Background()

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, err := hub.Visitor(ctx, "slow")
		assert.NoError(t, err)
	}()
	<-caches.entered

	fastDone := make(chan struct{})
	go func() {
		defer close(fastDone)
		_, err := hub.Visitor(ctx, "fast")
		assert.NoError(t, err)
	}()
	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("first contact for another visitor waited on the slow cache")
	}

	releaseGate()
	<-slowDone
	assert.Equal(t, 2, hub.Len())
}
