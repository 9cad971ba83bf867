// Package http serves a fakeapi.Backend over HTTP with the same routes,
// payloads and error bodies as the storefront REST backend.
//
// It backs `storefront mock-backend` and the end-to-end tests of the REST
// gateway.
//
// # Usage
//
//	backend := fakeapi.New()
//	_ = backend.SeedDemo()
//	srv := http.NewServer(backend,
//	    http.WithAddr("127.0.0.1:8000"),
//	    http.WithAllowedOrigins([]string{"http://localhost:3000"}),
//	    http.WithLogger(logger),
//	)
//	err := srv.Start(ctx)
//
// # Endpoints
//
//	POST   /auth/signup        - JSON {email, password, full_name}
//	POST   /auth/login         - form username, password
//	GET    /users/me           - current user
//	GET    /products/          - ?skip=&limit=
//	GET    /products/{id}
//	GET    /inventory/{id}
//	GET    /cart/              - {"items": [...]}
//	POST   /cart/              - JSON {prod_id, quantity}
//	PUT    /cart/{id}          - JSON {quantity}
//	DELETE /cart/{id}
//	DELETE /cart/
//	POST   /orders/            - JSON {delivery_info, subtotal, shipping_fee, total}
//	GET    /orders/
//	PATCH  /orders/{id}/status - admin only, JSON {status}
//	GET    /health
//	GET    /metrics
//
// Every route under /users, /cart and /orders requires
// "Authorization: Bearer <token>". Errors are written as {"detail": ...}
// where detail is a message or a list of {loc, msg, type} entries.
//
// # Middleware Chain
//
//  1. MetricsMiddleware - request count and duration by route
//  2. RequestIDMiddleware - X-Request-ID and a request-scoped logger
//  3. Recoverer - turns handler panics into 500s
//  4. CORS - allowed origins from WithAllowedOrigins
//
// POST /auth/login is additionally throttled per client address when
// WithLoginLimit is set; denied attempts get 429 with Retry-After.
package http
