package rest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/order"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithLogger(testLogger()),
	}
	return NewClient(append(base, opts...)...)
}

func staticCredential(s string) CredentialSource {
	return func() string { return s }
}

func TestFetchCart_DecodesBackendPayload(t *testing.T) {
	var gotAuth, gotRequestID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/cart/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"items":[{"id":7,"prod_id":1,"quantity":2,"product":{"id":1,"name":"Lamp","price":19.99}}]}`)
	}), WithCredentialSource(staticCredential("tok-1")))

	got, err := c.FetchCart(context.Background())
	if err != nil {
		t.Fatalf("FetchCart() error = %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("expected bearer credential, got %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Error("expected X-Request-ID header")
	}
	if got.Len() != 1 {
		t.Fatalf("expected 1 line, got %d", got.Len())
	}
	if got.Lines[0].Key() != "1" || got.Lines[0].Qty() != 2 {
		t.Errorf("unexpected line %+v", got.Lines[0])
	}
	if got.Total().StringFixed(2) != "39.98" {
		t.Errorf("expected total 39.98, got %s", got.Total().StringFixed(2))
	}
}

func TestFetchCart_UnexpectedShapeIsEmpty(t *testing.T) {
	bodies := []string{`[]`, `null`, ``, `{"items":"nope"}`, `{}`}
	for _, body := range bodies {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		}))
		got, err := c.FetchCart(context.Background())
		if err != nil {
			t.Errorf("body %q: unexpected error %v", body, err)
			continue
		}
		if got == nil || got.Len() != 0 {
			t.Errorf("body %q: expected empty cart, got %+v", body, got)
		}
	}
}

func TestFetchCart_MalformedLineKeepsOthers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"items":[
			{"prod_id":1,"quantity":2,"product":{"price":10}},
			{"prod_id":2,"quantity":"3","product":{"price":5}},
			{"id":"x7","prod_id":3,"quantity":"lots","product":{"price":4}},
			{"prod_id":4,"quantity":1,"product":{"name":"Rug","price":"abc"}},
			42,
			null
		]}`)
	}))

	got, err := c.FetchCart(context.Background())
	if err != nil {
		t.Fatalf("FetchCart() error = %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("expected 4 lines, got %d: %+v", got.Len(), got.Lines)
	}
	if q := got.Lines[1].Qty(); q != 3 {
		t.Errorf("numeric string quantity: got %d, want 3", q)
	}
	if l := got.Lines[2]; l.Key() != "3" || l.Quantity != nil || l.ID != 0 {
		t.Errorf("malformed quantity and id should be missing, got %+v", l)
	}
	if l := got.Lines[3]; l.Name() != "Rug" || l.Product.Price.Valid {
		t.Errorf("malformed price should be missing, got %+v", l.Product)
	}
	// 2*10 + 3*5; the malformed quantity and price contribute nothing.
	if got.Total().StringFixed(2) != "35.00" {
		t.Errorf("expected total 35.00, got %s", got.Total().StringFixed(2))
	}
	if got.ItemCount() != 6 {
		t.Errorf("expected item count 6, got %d", got.ItemCount())
	}
}

func TestAnonymousRequestHasNoAuthorization(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"items":[]}`)
	}), WithCredentialSource(staticCredential("")))

	if _, err := c.FetchCart(context.Background()); err != nil {
		t.Fatalf("FetchCart() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestUnauthorizedHandler(t *testing.T) {
	unauthorized := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Could not validate credentials"}`)
	})

	t.Run("credentialed request invokes handler", func(t *testing.T) {
		var got []string
		c := newTestClient(t, unauthorized,
			WithCredentialSource(staticCredential("stale")),
			WithUnauthorizedHandler(func(cred string) { got = append(got, cred) }),
		)
		_, err := c.FetchCart(context.Background())
		if !errors.Is(err, apierr.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if apierr.Message(err, "") != "Could not validate credentials" {
			t.Errorf("expected backend detail, got %q", apierr.Message(err, ""))
		}
		if len(got) != 1 || got[0] != "stale" {
			t.Errorf("expected handler called once with 'stale', got %v", got)
		}
	})

	t.Run("anonymous request does not invoke handler", func(t *testing.T) {
		called := false
		c := newTestClient(t, unauthorized,
			WithCredentialSource(staticCredential("")),
			WithUnauthorizedHandler(func(string) { called = true }),
		)
		if _, err := c.FetchCart(context.Background()); !errors.Is(err, apierr.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if called {
			t.Error("handler must not run for anonymous requests")
		}
	})

	t.Run("explicit credential does not invoke handler", func(t *testing.T) {
		called := false
		c := newTestClient(t, unauthorized,
			WithCredentialSource(staticCredential("current")),
			WithUnauthorizedHandler(func(string) { called = true }),
		)
		if _, err := c.Me(context.Background(), "candidate"); !errors.Is(err, apierr.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if called {
			t.Error("handler must not run for identity lookups")
		}
	})
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   apierr.Kind
		wantMsg    string
		wantFields map[string]string
	}{
		{
			name:     "server error with detail",
			status:   http.StatusInternalServerError,
			body:     `{"detail":"database unavailable"}`,
			wantKind: apierr.KindServer,
			wantMsg:  "database unavailable",
		},
		{
			name:     "server error without detail",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantKind: apierr.KindServer,
			wantMsg:  msgUpdateQuantity,
		},
		{
			name:     "plain 400 is a server error",
			status:   http.StatusBadRequest,
			body:     `{"detail":"Quantity exceeds stock"}`,
			wantKind: apierr.KindServer,
			wantMsg:  "Quantity exceeds stock",
		},
		{
			name:       "field list is a validation error",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail":[{"loc":["body","quantity"],"msg":"value is not a valid integer","type":"type_error.integer"}]}`,
			wantKind:   apierr.KindValidation,
			wantFields: map[string]string{"quantity": "value is not a valid integer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			_, err := c.SetQuantity(context.Background(), "3", 2)
			if apierr.KindOf(err) != tt.wantKind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.wantKind, apierr.KindOf(err), err)
			}
			if tt.wantMsg != "" && apierr.Message(err, "") != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, apierr.Message(err, ""))
			}
			if tt.wantFields != nil {
				var apiErr *apierr.Error
				if !errors.As(err, &apiErr) {
					t.Fatal("expected *apierr.Error")
				}
				got := apiErr.FieldMessages()
				for k, v := range tt.wantFields {
					if got[k] != v {
						t.Errorf("field %q: expected %q, got %q", k, v, got[k])
					}
				}
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(WithBaseURL(url), WithLogger(testLogger()), WithTimeout(time.Second))
	_, err := c.FetchCart(context.Background())
	if !errors.Is(err, apierr.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if apierr.Message(err, "") != msgLoadCart {
		t.Errorf("expected generic message, got %q", apierr.Message(err, ""))
	}
}

func TestAddQuantity(t *testing.T) {
	var requests atomic.Int32
	var gotBody string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":1,"prod_id":2,"quantity":3}`)
	}))

	if _, err := c.AddQuantity(context.Background(), "2", 0); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for delta 0, got %v", err)
	}
	if requests.Load() != 0 {
		t.Fatalf("expected no request for invalid delta, got %d", requests.Load())
	}

	line, err := c.AddQuantity(context.Background(), "2", 3)
	if err != nil {
		t.Fatalf("AddQuantity() error = %v", err)
	}
	if gotBody != `{"prod_id":2,"quantity":3}` {
		t.Errorf("unexpected body %s", gotBody)
	}
	if line == nil || line.Qty() != 3 {
		t.Errorf("unexpected line %+v", line)
	}
}

func TestSetQuantity_NullResponse(t *testing.T) {
	for _, body := range []string{`null`, ``} {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut || r.URL.Path != "/cart/5" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			io.WriteString(w, body)
		}))
		line, err := c.SetQuantity(context.Background(), "5", 0)
		if err != nil {
			t.Fatalf("SetQuantity() error = %v", err)
		}
		if line != nil {
			t.Errorf("body %q: expected nil line, got %+v", body, line)
		}
	}
}

func TestRemoveLine_Idempotent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cart/missing" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail":"Cart item not found"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.RemoveLine(context.Background(), "1"); err != nil {
		t.Errorf("RemoveLine(present) error = %v", err)
	}
	if err := c.RemoveLine(context.Background(), "missing"); err != nil {
		t.Errorf("RemoveLine(absent) error = %v", err)
	}
}

func TestInventory_NotFoundIsZeroStock(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/inventory/1":
			io.WriteString(w, `{"prod_id":1,"stock":4}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail":"Inventory not found"}`)
		}
	}))

	s, err := c.Inventory(context.Background(), "1")
	if err != nil || !s.Found || s.Count != 4 {
		t.Errorf("expected stock 4, got %+v (%v)", s, err)
	}
	s, err = c.Inventory(context.Background(), "2")
	if err != nil {
		t.Fatalf("Inventory(missing) error = %v", err)
	}
	if s.Found || s.Count != 0 || s.ProductID != "2" {
		t.Errorf("expected zero stock, got %+v", s)
	}
}

func TestLogin_FormEncoded(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must be anonymous")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("username") != "a@b.c" || r.PostForm.Get("password") != "secret123" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		io.WriteString(w, `{"access_token":"tok","token_type":"bearer"}`)
	}), WithCredentialSource(staticCredential("old")))

	tok, err := c.Login(context.Background(), "a@b.c", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok.AccessToken != "tok" {
		t.Errorf("expected access token, got %+v", tok)
	}
}

func TestMe_MapsIdentity(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer explicit" {
			t.Errorf("expected explicit credential, got %q", r.Header.Get("Authorization"))
		}
		io.WriteString(w, `{"id":12,"email":"a@b.c","full_name":"Ada","role":"admin","created_at":"2025-01-01T00:00:00"}`)
	}), WithCredentialSource(staticCredential("ambient")))

	id, err := c.Me(context.Background(), "explicit")
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if id.ID != "12" || id.DisplayName != "Ada" || id.Role != session.RoleAdmin {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestPlaceOrder_SendsNumbers(t *testing.T) {
	var gotBody string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":3,"subtotal":75.0,"shipping_fee":10.0,"total":85.0,"status":"pending"}`)
	}))

	product := &cart.Product{ID: "2", Name: "Kettle", Price: decimal.NewNullDecimal(decimal.NewFromInt(25))}
	quote := order.NewQuote(cart.NewLine("2", 3, product).Subtotal())
	o, err := c.PlaceOrder(context.Background(), order.Request{Quote: quote})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if !strings.Contains(gotBody, `"subtotal":75.00`) || !strings.Contains(gotBody, `"shipping_fee":10.00`) || !strings.Contains(gotBody, `"total":85.00`) {
		t.Errorf("expected numeric amounts, got %s", gotBody)
	}
	if o.ID != 3 || o.Total.StringFixed(2) != "85.00" {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cart/" && r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"items":[]}`)
	}), WithMetrics(m), WithCredentialSource(staticCredential("tok")))

	_, _ = c.FetchCart(context.Background())
	_ = c.ClearCart(context.Background())

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("fetch_cart", "ok")); got != 1 {
		t.Errorf("fetch_cart ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("clear_cart", "auth")); got != 1 {
		t.Errorf("clear_cart auth = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UnauthorizedTotal); got != 1 {
		t.Errorf("unauthorized_total = %v, want 1", got)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}), WithBreaker(BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}))

	for i := 0; i < 2; i++ {
		if _, err := c.FetchCart(context.Background()); !errors.Is(err, apierr.ErrServer) {
			t.Fatalf("call %d: expected server error, got %v", i, err)
		}
	}

	_, err := c.FetchCart(context.Background())
	if !errors.Is(err, apierr.ErrNetwork) {
		t.Fatalf("expected open breaker to fail fast with network error, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Errorf("expected 2 backend hits, got %d", hits)
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), WithBreaker(BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}))

	for i := 0; i < 3; i++ {
		if _, err := c.FetchCart(context.Background()); !errors.Is(err, apierr.ErrAuth) {
			t.Fatalf("call %d: expected auth error, got %v", i, err)
		}
	}
}
