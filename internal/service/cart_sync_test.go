package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
)

func newTestCartSync(t *testing.T) (*CartSync, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	store := NewCartStore(testServiceLogger())
	return NewCartSync(backend, store, WithSyncLogger(testServiceLogger())), backend
}

func TestCartSync_LoadReplacesStore(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	backend.lines["1"] = 2
	backend.order = []cart.ProductID{"1"}

	out, err := cs.Load(ctx)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, 2, cs.Store().ItemCount())
	assert.Equal(t, "99.98", cs.Store().Total().StringFixed(2))
	assert.False(t, cs.Store().Loading())
}

func TestCartSync_LoadFailureKeepsPreviousCart(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	_, err := cs.Add(ctx, "1", 1)
	require.NoError(t, err)

	backend.setFetchErr(apierr.Network("fetch cart", "Could not load cart data.", errors.New("connection refused")))
	_, err = cs.Load(ctx)
	require.ErrorIs(t, err, apierr.ErrNetwork)

	assert.Equal(t, 1, cs.Store().Len())
	assert.Equal(t, "Could not load cart data.", cs.Store().Err())
}

func TestCartSync_AddThreeAtFixedPrice(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, _ := newTestCartSync(t)

	out, err := cs.Add(context.Background(), "2", 3)
	require.NoError(t, err)

	assert.Equal(t, IntentAdd, out.Intent)
	assert.True(t, out.Applied)
	assert.Equal(t, `3 x "Mouse" added/updated in cart.`, out.Notice)
	assert.Equal(t, "75.00", cs.Store().Total().StringFixed(2))
	assert.Equal(t, 3, cs.Store().ItemCount())
}

func TestCartSync_AddAccumulates(t *testing.T) {
	cs, _ := newTestCartSync(t)
	ctx := context.Background()

	_, err := cs.Add(ctx, "2", 1)
	require.NoError(t, err)
	out, err := cs.Add(ctx, "2", 2)
	require.NoError(t, err)

	assert.Equal(t, `3 x "Mouse" added/updated in cart.`, out.Notice)
	assert.Equal(t, 1, cs.Store().Len())
	assert.Equal(t, 3, cs.Store().ItemCount())
}

func TestCartSync_AddRejectsNonPositiveDelta(t *testing.T) {
	cs, backend := newTestCartSync(t)

	_, err := cs.Add(context.Background(), "1", 0)
	require.ErrorIs(t, err, apierr.ErrValidation)
	assert.Equal(t, 0, backend.callCount("add"))
	assert.Equal(t, 0, backend.callCount("fetch"))
}

func TestCartSync_SetQuantityZeroIsRemove(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	_, err := cs.Add(ctx, "1", 2)
	require.NoError(t, err)
	_, err = cs.Add(ctx, "2", 1)
	require.NoError(t, err)

	out, err := cs.SetQuantity(ctx, "1", 0)
	require.NoError(t, err)

	assert.Equal(t, IntentRemove, out.Intent)
	assert.Equal(t, `"Keyboard" removed successfully.`, out.Notice)
	assert.Equal(t, 0, backend.callCount("set"))
	assert.Equal(t, 1, backend.callCount("remove"))

	_, ok := cs.Store().Line("1")
	assert.False(t, ok)
	assert.Equal(t, 1, cs.Store().Len())
}

func TestCartSync_SetQuantity(t *testing.T) {
	cs, _ := newTestCartSync(t)
	ctx := context.Background()

	_, err := cs.Add(ctx, "1", 1)
	require.NoError(t, err)

	out, err := cs.SetQuantity(ctx, "1", 4)
	require.NoError(t, err)
	assert.Equal(t, `Quantity for "Keyboard" updated to 4.`, out.Notice)
	assert.Equal(t, 4, cs.Store().ItemCount())
}

func TestCartSync_RemoveOnlyLine(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, _ := newTestCartSync(t)
	ctx := context.Background()

	_, err := cs.Add(ctx, "3", 1)
	require.NoError(t, err)

	_, err = cs.Remove(ctx, "3")
	require.NoError(t, err)

	assert.Equal(t, 0, cs.Store().Len())
	assert.True(t, cs.Store().Total().IsZero())
	assert.Equal(t, 0, cs.Store().ItemCount())
}

func TestCartSync_RemoveAbsentLineSucceeds(t *testing.T) {
	cs, _ := newTestCartSync(t)

	out, err := cs.Remove(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, `"Product ID 42" removed successfully.`, out.Notice)
}

func TestCartSync_Clear(t *testing.T) {
	cs, _ := newTestCartSync(t)
	ctx := context.Background()

	_, _ = cs.Add(ctx, "1", 1)
	_, _ = cs.Add(ctx, "2", 1)

	out, err := cs.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cart cleared.", out.Notice)
	assert.Equal(t, 0, cs.Store().Len())
}

func TestCartSync_GatewayFailureLeavesStoreUntouched(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	_, err := cs.Add(ctx, "1", 2)
	require.NoError(t, err)
	before := cs.Store().Cart()
	fetches := backend.callCount("fetch")

	backend.setErr = apierr.FromResponse("set quantity", http.StatusBadRequest, []byte(`{"detail":"Not enough stock"}`), "")
	_, err = cs.SetQuantity(ctx, "1", 50)
	require.Error(t, err)

	assert.Equal(t, before, cs.Store().Cart())
	assert.Equal(t, fetches, backend.callCount("fetch"), "no resync after a failed mutation")
	assert.Equal(t, "Not enough stock", cs.Store().Err())
	assert.False(t, cs.Store().Updating())
}

func TestCartSync_ResyncFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	backend.setFetchErr(apierr.Network("fetch cart", "Could not load cart data.", errors.New("timeout")))
	_, err := cs.Add(ctx, "1", 1)

	require.ErrorIs(t, err, ErrResyncFailed)
	require.ErrorIs(t, err, apierr.ErrNetwork)
	var rerr *ResyncError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, IntentAdd, rerr.Intent)

	// The mutation reached the backend; the store is stale until the next load.
	assert.Equal(t, 1, backend.lines["1"])
	assert.Equal(t, 0, cs.Store().Len())

	backend.setFetchErr(nil)
	_, err = cs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cs.Store().Len())
	assert.Empty(t, cs.Store().Err())
}

func TestCartSync_LastIssuedResyncWins(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	firstFetched := make(chan struct{})
	release := make(chan struct{})
	backend.afterSnapshot = func(n int) {
		if n == 1 {
			close(firstFetched)
			<-release
		}
	}

	var wg sync.WaitGroup
	var first Outcome
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = cs.Add(ctx, "1", 1)
	}()

	// The first resync has read a cart with only product 1 and is stuck.
	<-firstFetched
	second, err := cs.Add(ctx, "2", 1)
	require.NoError(t, err)
	assert.True(t, second.Applied)

	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.False(t, first.Applied, "stale resync must be discarded")
	assert.Equal(t, 2, cs.Store().Len())
	_, ok := cs.Store().Line("2")
	assert.True(t, ok)
}

func TestCartSync_RapidQuantityChangesEndAtLastIssued(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	_, err := cs.Add(ctx, "1", 1)
	require.NoError(t, err)

	// Fetch 1 was the Add resync; fetch 2 is the resync after setting 2.
	firstFetched := make(chan struct{})
	release := make(chan struct{})
	backend.afterSnapshot = func(n int) {
		if n == 2 {
			close(firstFetched)
			<-release
		}
	}

	var wg sync.WaitGroup
	var first Outcome
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = cs.SetQuantity(ctx, "1", 2)
	}()

	<-firstFetched
	second, err := cs.SetQuantity(ctx, "1", 5)
	require.NoError(t, err)
	assert.True(t, second.Applied)

	// The resync carrying quantity 2 completes last and must be discarded.
	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.False(t, first.Applied)
	line, ok := cs.Store().Line("1")
	require.True(t, ok)
	assert.Equal(t, 5, line.Qty())
	assert.Equal(t, 5, cs.Store().ItemCount())
}

func TestCartSync_ResetDropsInFlightLoad(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	backend.lines["1"] = 1
	backend.order = []cart.ProductID{"1"}

	fetched := make(chan struct{})
	release := make(chan struct{})
	backend.afterSnapshot = func(int) {
		close(fetched)
		<-release
	}

	done := make(chan Outcome)
	go func() {
		out, _ := cs.Load(ctx)
		done <- out
	}()

	<-fetched
	cs.Store().Reset()
	close(release)

	out := <-done
	assert.False(t, out.Applied)
	assert.Equal(t, 0, cs.Store().Len())
}

func TestCartSync_Close(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	cs.Close()

	_, err := cs.Add(ctx, "1", 1)
	assert.ErrorIs(t, err, ErrSyncClosed)
	_, err = cs.Load(ctx)
	assert.ErrorIs(t, err, ErrSyncClosed)
	_, err = cs.Clear(ctx)
	assert.ErrorIs(t, err, ErrSyncClosed)

	assert.Equal(t, 0, backend.callCount("add"))
	assert.Equal(t, 0, backend.callCount("fetch"))
}

func TestCartSync_CloseDropsInFlightResult(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)

	fetched := make(chan struct{})
	release := make(chan struct{})
	backend.afterSnapshot = func(int) {
		close(fetched)
		<-release
	}

	done := make(chan Outcome)
	go func() {
		out, _ := cs.Add(context.Background(), "1", 1)
		done <- out
	}()

	<-fetched
	cs.Close()
	close(release)

	out := <-done
	assert.False(t, out.Applied)
	assert.Equal(t, 0, cs.Store().Len())
}

func TestCartSync_Telemetry(t *testing.T) {
	ctx := context.Background()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
	})

	backend := newFakeBackend()
	cs := NewCartSync(backend, NewCartStore(testServiceLogger()),
		WithSyncLogger(testServiceLogger()),
		WithTracerProvider(tp),
		WithMeterProvider(mp),
	)

	_, err := cs.Add(ctx, "1", 1)
	require.NoError(t, err)
	_, err = cs.Add(ctx, "1", 0)
	require.Error(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "cart.add", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "storefront.cart.intents" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value(attribute.Key("result"))
				counts[result.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"ok": 1, "error": 1}, counts)
}

func TestCartSync_ConcurrentIntents(t *testing.T) {
	defer goleak.VerifyNone(t)
	cs, backend := newTestCartSync(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cs.Add(ctx, "1", 1)
		}()
	}
	wg.Wait()

	// Whatever order the resyncs landed in, a fresh load sees every add.
	_, err := cs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, cs.Store().ItemCount())
	assert.Equal(t, 10, backend.callCount("add"))
}
