package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

const instrumentationName = "github.com/storefront-dev/storefront/internal/service"

// Intent names a user-initiated cart operation.
type Intent string

const (
	IntentLoad        Intent = "load"
	IntentAdd         Intent = "add"
	IntentSetQuantity Intent = "set_quantity"
	IntentRemove      Intent = "remove"
	IntentClear       Intent = "clear"
)

// CartSync errors.
var (
	// ErrResyncFailed matches a ResyncError: the mutation was accepted by the
	// backend but the follow-up fetch failed, so the store may be stale.
	ErrResyncFailed = errors.New("cart resync failed")
	// ErrSyncClosed is returned for intents issued after Close.
	ErrSyncClosed = errors.New("cart sync closed")
)

// ResyncError reports a successful mutation whose resync failed.
type ResyncError struct {
	Intent Intent
	Err    error
}

// Error returns a human-readable description of the failure.
func (e *ResyncError) Error() string {
	return fmt.Sprintf("%s applied but cart resync failed: %v", e.Intent, e.Err)
}

// Unwrap returns the fetch error.
func (e *ResyncError) Unwrap() error {
	return e.Err
}

// Is supports errors.Is(err, ErrResyncFailed).
func (e *ResyncError) Is(target error) bool {
	return target == ErrResyncFailed
}

// Outcome is the result of a completed intent.
type Outcome struct {
	Intent    Intent
	ProductID cart.ProductID
	// Applied reports whether the resync was written to the store. It is
	// false when a newer resync already landed or the controller was closed.
	Applied bool
	// Notice is the user-facing confirmation.
	Notice string
}

// CartSync turns user intents into a gateway call followed by a full resync.
//
// Nothing is applied to the store before the backend confirms a mutation,
// so a failed intent leaves the store exactly as it was. Intents are not
// queued against each other; ordering between overlapping intents is
// resolved by the store's sequence guard.
type CartSync struct {
	gateway outbound.CartGateway
	store   *CartStore
	logger  *slog.Logger
	tracer  trace.Tracer
	intents metric.Int64Counter
	closed  atomic.Bool
}

// CartSyncOption configures a CartSync.
type CartSyncOption func(*cartSyncConfig)

type cartSyncConfig struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithSyncLogger sets the logger.
func WithSyncLogger(l *slog.Logger) CartSyncOption {
	return func(c *cartSyncConfig) { c.logger = l }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) CartSyncOption {
	return func(c *cartSyncConfig) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) CartSyncOption {
	return func(c *cartSyncConfig) { c.meterProvider = mp }
}

// NewCartSync creates a controller writing to store.
func NewCartSync(gateway outbound.CartGateway, store *CartStore, opts ...CartSyncOption) *CartSync {
	cfg := cartSyncConfig{
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := cfg.meterProvider.Meter(instrumentationName)
	intents, err := meter.Int64Counter("storefront.cart.intents",
		metric.WithDescription("Cart intents by name and result"),
	)
	if err != nil {
		cfg.logger.Warn("failed to create cart intent counter", "error", err)
	}

	return &CartSync{
		gateway: gateway,
		store:   store,
		logger:  cfg.logger,
		tracer:  cfg.tracerProvider.Tracer(instrumentationName),
		intents: intents,
	}
}

// Store returns the store the controller writes to.
func (s *CartSync) Store() *CartStore {
	return s.store
}

// Close stops the controller from applying any further results. Requests
// already in flight run to completion; their results are dropped.
func (s *CartSync) Close() {
	s.closed.Store(true)
}

// Load fetches the cart and replaces the store. On failure the previous cart
// is kept and the error recorded.
func (s *CartSync) Load(ctx context.Context) (Outcome, error) {
	if s.closed.Load() {
		return Outcome{Intent: IntentLoad}, ErrSyncClosed
	}
	ctx, span := s.tracer.Start(ctx, "cart.load")
	defer span.End()

	done := s.store.beginLoad()
	defer done()

	out := Outcome{Intent: IntentLoad}
	applied, err := s.resync(ctx)
	if err != nil {
		s.fail(ctx, span, IntentLoad, "", err)
		return out, err
	}
	out.Applied = applied
	s.succeed(ctx, IntentLoad, "", applied)
	return out, nil
}

// Add increments the line for id by delta, creating it if absent.
func (s *CartSync) Add(ctx context.Context, id cart.ProductID, delta int) (Outcome, error) {
	var added *cart.Line
	return s.run(ctx, IntentAdd, id, func(ctx context.Context) error {
		if delta < 1 {
			return apierr.Validation("add to cart", apierr.FieldError{Field: "quantity", Message: "must be at least 1"})
		}
		line, err := s.gateway.AddQuantity(ctx, id, delta)
		added = line
		return err
	}, func(name string) string {
		qty := delta
		if added != nil && added.Quantity != nil {
			qty = added.Qty()
		}
		return fmt.Sprintf("%d x %q added/updated in cart.", qty, name)
	})
}

// SetQuantity sets the line for id to n. n < 1 is a removal.
func (s *CartSync) SetQuantity(ctx context.Context, id cart.ProductID, n int) (Outcome, error) {
	if n < 1 {
		return s.Remove(ctx, id)
	}
	return s.run(ctx, IntentSetQuantity, id, func(ctx context.Context) error {
		_, err := s.gateway.SetQuantity(ctx, id, n)
		return err
	}, func(name string) string {
		return fmt.Sprintf("Quantity for %q updated to %d.", name, n)
	})
}

// Remove deletes the line for id. Removing an absent line succeeds.
func (s *CartSync) Remove(ctx context.Context, id cart.ProductID) (Outcome, error) {
	return s.run(ctx, IntentRemove, id, func(ctx context.Context) error {
		return s.gateway.RemoveLine(ctx, id)
	}, func(name string) string {
		return fmt.Sprintf("%q removed successfully.", name)
	})
}

// Clear removes every line.
func (s *CartSync) Clear(ctx context.Context) (Outcome, error) {
	return s.run(ctx, IntentClear, "", func(ctx context.Context) error {
		return s.gateway.ClearCart(ctx)
	}, func(string) string {
		return "Cart cleared."
	})
}

// run executes mutate and, on success, a full resync.
func (s *CartSync) run(ctx context.Context, intent Intent, id cart.ProductID, mutate func(context.Context) error, notice func(name string) string) (Outcome, error) {
	out := Outcome{Intent: intent, ProductID: id}
	if s.closed.Load() {
		return out, ErrSyncClosed
	}

	ctx, span := s.tracer.Start(ctx, "cart."+string(intent),
		trace.WithAttributes(attribute.String("product_id", id.String())),
	)
	defer span.End()

	name := s.displayName(id)
	done := s.store.beginUpdate(id)
	defer done()

	if err := mutate(ctx); err != nil {
		s.fail(ctx, span, intent, id, err)
		return out, err
	}

	if s.closed.Load() {
		return out, nil
	}

	applied, err := s.resync(ctx)
	if err != nil {
		rerr := &ResyncError{Intent: intent, Err: err}
		s.fail(ctx, span, intent, id, rerr)
		return out, rerr
	}
	if name == "" {
		name = s.displayName(id)
	}
	if name == "" {
		name = cart.Line{ProductID: id}.Name()
	}

	out.Applied = applied
	out.Notice = notice(name)
	s.succeed(ctx, intent, id, applied)
	return out, nil
}

// resync fetches the cart and hands it to the store with a sequence number
// taken before the request went out.
func (s *CartSync) resync(ctx context.Context) (bool, error) {
	seq := s.store.NextSeq()
	c, err := s.gateway.FetchCart(ctx)
	if err != nil {
		return false, err
	}
	if s.closed.Load() {
		return false, nil
	}
	return s.store.Replace(seq, c), nil
}

func (s *CartSync) displayName(id cart.ProductID) string {
	if id == "" {
		return ""
	}
	if l, ok := s.store.Line(id); ok && l.Product != nil && l.Product.Name != "" {
		return l.Product.Name
	}
	return ""
}

func (s *CartSync) fail(ctx context.Context, span trace.Span, intent Intent, id cart.ProductID, err error) {
	msg := apierr.Message(err, "Could not update cart.")
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	s.count(ctx, intent, "error")
	if !s.closed.Load() {
		s.store.setErr(msg)
	}
	s.logger.Warn("cart intent failed",
		"intent", string(intent),
		"product_id", id.String(),
		"kind", apierr.KindOf(err).String(),
		"error", err,
	)
}

func (s *CartSync) succeed(ctx context.Context, intent Intent, id cart.ProductID, applied bool) {
	s.count(ctx, intent, "ok")
	s.logger.Debug("cart intent completed",
		"intent", string(intent),
		"product_id", id.String(),
		"applied", applied,
	)
}

func (s *CartSync) count(ctx context.Context, intent Intent, result string) {
	if s.intents == nil {
		return
	}
	s.intents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", string(intent)),
		attribute.String("result", result),
	))
}
