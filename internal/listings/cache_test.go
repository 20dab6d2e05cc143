package listings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/museumbook/internal/booking"
	"github.com/wolfman30/museumbook/internal/bulk"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/pkg/logging"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

type fakeSource struct {
	own   int
	admin int
}

func (f *fakeSource) ListAppointments(_ context.Context, q museumapi.AppointmentQuery) (*museumapi.AppointmentPage, error) {
	f.own++
	return &museumapi.AppointmentPage{
		Appointments: []museumapi.Appointment{{ID: "a1", Status: booking.StatusPending}},
		Pagination:   museumapi.Pagination{Page: q.Page, Total: f.own},
	}, nil
}

func (f *fakeSource) AdminAppointments(_ context.Context, _ museumapi.AppointmentQuery) (*museumapi.AppointmentPage, error) {
	f.admin++
	return &museumapi.AppointmentPage{Pagination: museumapi.Pagination{Total: 100 + f.admin}}, nil
}

func TestLister_CachesUntilInvalidated(t *testing.T) {
	_, client := setupTestRedis(t)
	cache := NewCache(client, time.Minute, logging.Discard())
	src := &fakeSource{}
	lister := NewLister(src, cache, logging.Discard()).WithOwner("u1")
	ctx := context.Background()
	q := museumapi.AppointmentQuery{Page: 1, Status: booking.StatusPending}

	first, err := lister.List(ctx, q)
	require.NoError(t, err)
	second, err := lister.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, src.own)
	assert.Equal(t, first.Pagination.Total, second.Pagination.Total)

	require.NoError(t, cache.Invalidate(ctx))

	third, err := lister.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, src.own)
	assert.Equal(t, 2, third.Pagination.Total)
}

func TestLister_KeysByQueryScopeAndOwner(t *testing.T) {
	_, client := setupTestRedis(t)
	cache := NewCache(client, time.Minute, logging.Discard())
	src := &fakeSource{}
	ctx := context.Background()

	_, err := NewLister(src, cache, nil).WithOwner("u1").List(ctx, museumapi.AppointmentQuery{Page: 1})
	require.NoError(t, err)
	_, err = NewLister(src, cache, nil).WithOwner("u1").List(ctx, museumapi.AppointmentQuery{Page: 2})
	require.NoError(t, err)
	_, err = NewLister(src, cache, nil).WithOwner("u2").List(ctx, museumapi.AppointmentQuery{Page: 1})
	require.NoError(t, err)
	_, err = NewLister(src, cache, nil).WithOwner("u1").AdminList(ctx, museumapi.AppointmentQuery{Page: 1})
	require.NoError(t, err)

	assert.Equal(t, 3, src.own)
	assert.Equal(t, 1, src.admin)
}

func TestCache_EntriesExpire(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCache(client, 30*time.Second, logging.Discard())
	ctx := context.Background()
	q := museumapi.AppointmentQuery{}

	require.NoError(t, cache.Put(ctx, ScopeOwn, "u1", q, &museumapi.AppointmentPage{}))
	_, ok, err := cache.Get(ctx, ScopeOwn, "u1", q)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(31 * time.Second)

	_, ok, err = cache.Get(ctx, ScopeOwn, "u1", q)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLister_NilCacheAndRedisDown(t *testing.T) {
	src := &fakeSource{}
	ctx := context.Background()

	direct := NewLister(src, nil, logging.Discard())
	_, err := direct.List(ctx, museumapi.AppointmentQuery{})
	require.NoError(t, err)
	_, err = direct.List(ctx, museumapi.AppointmentQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, src.own)

	mr, client := setupTestRedis(t)
	mr.Close()
	broken := NewLister(src, NewCache(client, time.Minute, logging.Discard()), logging.Discard())
	page, err := broken.List(ctx, museumapi.AppointmentQuery{})
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Equal(t, 3, src.own)
}

func TestCache_AfterBatchInvalidatesOnlyOnSuccess(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCache(client, time.Minute, logging.Discard())
	ctx := context.Background()

	cache.AfterBatch(ctx, &bulk.Result{Outcomes: []bulk.Outcome{{Success: false}}})
	assert.False(t, mr.Exists(generationKey))

	cache.AfterBatch(ctx, &bulk.Result{BatchID: "b1", Outcomes: []bulk.Outcome{{Success: true}, {Success: false}}})
	gen, err := mr.Get(generationKey)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
}
