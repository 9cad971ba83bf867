// Package session models the client's authentication state: a bearer
// credential and the identity it was validated to.
package session

import (
	"strings"
)

// State is the lifecycle state of the client session.
type State int

const (
	// StateUnknown is the initial state while a persisted credential is validated.
	StateUnknown State = iota
	// StateAuthenticated means the credential was validated in this session lifetime.
	StateAuthenticated
	// StateAnonymous means there is no usable credential.
	StateAnonymous
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "invalid"
	}
}

// Role is the single source of "who am I" for the storefront. It replaces any
// separate admin flag: an admin is simply an authenticated identity whose
// role is RoleAdmin.
type Role int

const (
	// RoleAnonymous is the role of a session without identity.
	RoleAnonymous Role = iota
	// RoleCustomer is the default role of an authenticated user.
	RoleCustomer
	// RoleAdmin has access to the admin affordances.
	RoleAdmin
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRole maps the backend's role string to a Role. Authenticated users
// without an explicit role are customers.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "administrator":
		return RoleAdmin
	default:
		return RoleCustomer
	}
}

// Identity is the resolved user record behind a credential.
type Identity struct {
	ID          string `json:"id" yaml:"id"`
	Email       string `json:"email" yaml:"email"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Role        Role   `json:"role" yaml:"role"`
	CreatedAt   string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Clone returns a copy of the identity; nil stays nil.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

// Session is a consistent snapshot of the authentication state.
// Identity is non-nil only in StateAuthenticated.
type Session struct {
	State      State
	Credential string
	Identity   *Identity
}

// Role returns the role of the session.
func (s Session) Role() Role {
	if s.State != StateAuthenticated || s.Identity == nil {
		return RoleAnonymous
	}
	return s.Identity.Role
}

// IsAuthenticated reports whether the session holds a validated credential.
func (s Session) IsAuthenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

// Reason explains why a transition happened.
type Reason string

const (
	ReasonInitialize Reason = "initialize"
	ReasonLogin      Reason = "login"
	ReasonLogout     Reason = "logout"
	ReasonRejected   Reason = "rejected"
	ReasonExpired    Reason = "expired"
	ReasonRefresh    Reason = "refresh"
)

// Transition is delivered to session observers. From equals To only for
// Authenticated, when a re-login or refresh replaced the identity.
type Transition struct {
	From     State
	To       State
	Identity *Identity
	Reason   Reason
}

// SignupRequest is the payload of POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name,omitempty" validate:"omitempty,max=200"`
}
