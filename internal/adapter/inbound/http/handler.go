package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/fakeapi"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type api struct {
	backend  *fakeapi.Backend
	metrics  *Metrics
	throttle func(http.Handler) http.Handler
}

type addLineBody struct {
	ProductID cart.ProductID `json:"prod_id"`
	Quantity  int            `json:"quantity"`
}

type quantityBody struct {
	Quantity int `json:"quantity"`
}

type statusBody struct {
	Status string `json:"status"`
}

// routes mounts the backend endpoints on r.
func (a *api) routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", a.signup)
		r.With(a.throttle).Post("/login", a.login)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.listProducts)
		r.Get("/{id}", a.product)
	})
	r.Get("/inventory/{id}", a.inventory)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser(a.backend))

		r.Get("/users/me", a.me)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", a.cart)
			r.Post("/", a.addToCart)
			r.Delete("/", a.clearCart)
			r.Put("/{id}", a.setQuantity)
			r.Delete("/{id}", a.removeFromCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", a.listOrders)
			r.Post("/", a.placeOrder)
			r.Patch("/{id}/status", a.setOrderStatus)
		})
	})
}

func (a *api) signup(w http.ResponseWriter, r *http.Request) {
	var req session.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.backend.Signup(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	LoggerFromContext(r.Context()).Info("user signed up", "email", user.Email)
	writeJSON(w, http.StatusCreated, user)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, &fakeapi.Error{Status: http.StatusBadRequest, Detail: "Invalid form body"})
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	var missing []fakeapi.FieldIssue
	if username == "" {
		missing = append(missing, fakeapi.FieldIssue{Loc: []any{"body", "username"}, Msg: "Field required", Type: "missing"})
	}
	if password == "" {
		missing = append(missing, fakeapi.FieldIssue{Loc: []any{"body", "password"}, Msg: "Field required", Type: "missing"})
	}
	if len(missing) > 0 {
		writeError(w, r, &fakeapi.Error{Status: http.StatusUnprocessableEntity, Detail: missing})
		return
	}

	token, err := a.backend.Login(username, password)
	a.metrics.LoginsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UserFromContext(r.Context()))
}

func (a *api) listProducts(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(w, r, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 100)
	if !ok {
		return
	}
	products, err := a.backend.Products(skip, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *api) product(w http.ResponseWriter, r *http.Request) {
	p, err := a.backend.Product(cart.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) inventory(w http.ResponseWriter, r *http.Request) {
	s, err := a.backend.Inventory(cart.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) cart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.backend.Cart(UserFromContext(r.Context()).ID))
}

func (a *api) addToCart(w http.ResponseWriter, r *http.Request) {
	var body addLineBody
	if !decodeJSON(w, r, &body) {
		return
	}
	line, err := a.backend.AddToCart(UserFromContext(r.Context()).ID, body.ProductID, body.Quantity)
	a.metrics.CartMutations.WithLabelValues("add", resultLabel(err)).Inc()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (a *api) setQuantity(w http.ResponseWriter, r *http.Request) {
	var body quantityBody
	if !decodeJSON(w, r, &body) {
		return
	}
	id := cart.ProductID(chi.URLParam(r, "id"))
	line, err := a.backend.SetCartQuantity(UserFromContext(r.Context()).ID, id, body.Quantity)
	a.metrics.CartMutations.WithLabelValues("set", resultLabel(err)).Inc()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (a *api) removeFromCart(w http.ResponseWriter, r *http.Request) {
	id := cart.ProductID(chi.URLParam(r, "id"))
	err := a.backend.RemoveFromCart(UserFromContext(r.Context()).ID, id)
	a.metrics.CartMutations.WithLabelValues("remove", resultLabel(err)).Inc()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) clearCart(w http.ResponseWriter, r *http.Request) {
	a.backend.ClearCart(UserFromContext(r.Context()).ID)
	a.metrics.CartMutations.WithLabelValues("clear", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) placeOrder(w http.ResponseWriter, r *http.Request) {
	var body fakeapi.OrderCreate
	if !decodeJSON(w, r, &body) {
		return
	}
	user := UserFromContext(r.Context())
	o, err := a.backend.PlaceOrder(user.ID, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.metrics.OrdersPlaced.Inc()
	LoggerFromContext(r.Context()).Info("order placed", "order_id", o.ID, "user", user.Email)
	writeJSON(w, http.StatusCreated, o)
}

func (a *api) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.backend.Orders(UserFromContext(r.Context()).ID))
}

func (a *api) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, &fakeapi.Error{
			Status: http.StatusUnprocessableEntity,
			Detail: []fakeapi.FieldIssue{{Loc: []any{"path", "id"}, Msg: "Input should be a valid integer", Type: "int_parsing"}},
		})
		return
	}
	var body statusBody
	if !decodeJSON(w, r, &body) {
		return
	}
	o, err := a.backend.SetOrderStatus(UserFromContext(r.Context()), id, body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// decodeJSON reads a JSON body into v. On failure it writes a 422 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, &fakeapi.Error{
			Status: http.StatusUnprocessableEntity,
			Detail: []fakeapi.FieldIssue{{Loc: []any{"body"}, Msg: "JSON decode error", Type: "json_invalid"}},
		})
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, &fakeapi.Error{
			Status: http.StatusUnprocessableEntity,
			Detail: []fakeapi.FieldIssue{{Loc: []any{"query", name}, Msg: "Input should be a valid integer", Type: "int_parsing"}},
		})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"detail": ...}. Errors that are not
// *fakeapi.Error become a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *fakeapi.Error
	if !errors.As(err, &apiErr) {
		LoggerFromContext(r.Context()).Error("request failed", "error", err)
		apiErr = &fakeapi.Error{Status: http.StatusInternalServerError, Detail: "Internal Server Error"}
	}
	writeJSON(w, apiErr.Status, map[string]any{"detail": apiErr.Detail})
}
