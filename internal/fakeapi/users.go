package fakeapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

var errCredentials = &Error{Status: http.StatusUnauthorized, Detail: "Could not validate credentials"}

// TokenResponse is the body of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateUser registers an account. role defaults to customer.
func (b *Backend) CreateUser(email, password, fullName, role string) (*User, error) {
	in := session.SignupRequest{Email: email, Password: password, FullName: fullName}
	if err := b.validate.Struct(in); err != nil {
		return nil, b.fieldIssues(err)
	}
	if role == "" {
		role = "customer"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, errorf(http.StatusInternalServerError, "Could not create user.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := b.users[key]; exists {
		return nil, errorf(http.StatusBadRequest, "Email already registered")
	}
	u := &User{
		ID:        b.id("user"),
		Email:     email,
		Role:      role,
		CreatedAt: b.now().UTC(),
		hash:      hash,
	}
	if fullName != "" {
		name := fullName
		u.FullName = &name
	}
	b.users[key] = u
	b.logger.Debug("user created", "email", email, "role", role)
	cp := *u
	return &cp, nil
}

// Signup registers a customer account.
func (b *Backend) Signup(req session.SignupRequest) (*User, error) {
	return b.CreateUser(req.Email, req.Password, req.FullName, "customer")
}

// Login checks the password and issues a bearer token whose subject is the
// user's email.
func (b *Backend) Login(email, password string) (*TokenResponse, error) {
	b.mu.Lock()
	u, ok := b.users[strings.ToLower(email)]
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return nil, errorf(http.StatusUnauthorized, "Incorrect email or password")
	}

	now := b.now()
	claims := jwt.RegisteredClaims{
		Subject:   u.Email,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(b.tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return nil, errorf(http.StatusInternalServerError, "Could not issue token.")
	}
	return &TokenResponse{AccessToken: signed, TokenType: "bearer"}, nil
}

// Authenticate resolves a bearer token to its user.
func (b *Backend) Authenticate(token string) (*User, error) {
	if token == "" {
		return nil, errCredentials
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return b.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		b.logger.Debug("token rejected", "error", err)
		return nil, errCredentials
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[strings.ToLower(claims.Subject)]
	if !ok {
		return nil, errCredentials
	}
	cp := *u
	return &cp, nil
}

// fieldIssues converts validator errors into a 422 body. parents are the
// body keys enclosing the validated struct.
func (b *Backend) fieldIssues(err error, parents ...string) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid(bodyIssue("", err.Error(), "value_error"))
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		loc := []any{"body"}
		for _, p := range parents {
			loc = append(loc, p)
		}
		loc = append(loc, fe.Field())
		issues = append(issues, FieldIssue{Loc: loc, Msg: issueMessage(fe), Type: fe.Tag()})
	}
	return invalid(issues...)
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Field required"
	case "email":
		return "value is not a valid email address"
	case "min":
		return "String should have at least " + fe.Param() + " characters"
	case "max":
		return "String should have at most " + fe.Param() + " characters"
	default:
		return "Invalid value"
	}
}

func mustPrice(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
