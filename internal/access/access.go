// Package access resolves the caller's identity into the capability set and
// scope the core services filter with. Role strings are interpreted here and
// nowhere else.
package access

import (
	"context"
	"slices"
	"strings"

	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	pstrings "actarchive/pkg/platform/strings"
)

// Role is the caller's function in the registry office.
type Role string

const (
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// ParseRole normalizes and validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAgent, RoleSupervisor, RoleAdmin:
		return role, nil
	case "":
		return "", dErrors.New(dErrors.CodeUnauthorized, "role is required")
	default:
		return "", dErrors.New(dErrors.CodeForbidden, "unknown role")
	}
}

// Identity is who is calling, as asserted by the upstream gateway.
type Identity struct {
	UserID  id.UserID
	Role    Role
	Bureaux []string
}

// NewIdentity validates the identity triple. Bureaux are trimmed and deduped.
func NewIdentity(userID id.UserID, role Role, bureaux []string) (Identity, error) {
	if userID.IsNil() {
		return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "user id is required")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID, Role: role, Bureaux: pstrings.DedupeAndTrim(bureaux)}, nil
}

// Capabilities is what an identity may see. Resolved once per request.
type Capabilities struct {
	CanViewAll     bool
	CanViewOwn     bool
	CanViewBureaux []string
}

// Resolve maps an identity to its capabilities.
//   - agent: own uploads only
//   - supervisor: documents of the assigned bureaux
//   - admin: everything
func Resolve(identity Identity) Capabilities {
	switch identity.Role {
	case RoleAdmin:
		return Capabilities{CanViewAll: true}
	case RoleSupervisor:
		return Capabilities{CanViewBureaux: slices.Clone(identity.Bureaux)}
	case RoleAgent:
		return Capabilities{CanViewOwn: true}
	default:
		return Capabilities{}
	}
}

// IsAdmin reports whether admin-only operations are allowed.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Scope is the filter the core applies to reads. The zero value sees nothing.
type Scope struct {
	all     bool
	ownerID id.UserID
	bureaux []string
}

// Unrestricted returns a scope that sees everything (operator CLI, internal jobs).
func Unrestricted() Scope {
	return Scope{all: true}
}

// ScopeFor builds the read scope for an identity.
func ScopeFor(identity Identity) Scope {
	caps := Resolve(identity)
	switch {
	case caps.CanViewAll:
		return Scope{all: true}
	case caps.CanViewOwn:
		return Scope{ownerID: identity.UserID}
	default:
		return Scope{bureaux: caps.CanViewBureaux}
	}
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool { return s.all }

// OwnerID returns the uploader the scope is limited to, if any.
func (s Scope) OwnerID() (id.UserID, bool) {
	return s.ownerID, !s.ownerID.IsNil()
}

// Bureaux returns the bureaux the scope is limited to.
func (s Scope) Bureaux() []string { return slices.Clone(s.bureaux) }

// Allows reports whether a document owned by ownerID in bureau is visible.
func (s Scope) Allows(ownerID id.UserID, bureau string) bool {
	if s.all {
		return true
	}
	if !s.ownerID.IsNil() {
		return s.ownerID == ownerID
	}
	return slices.Contains(s.bureaux, bureau)
}

// AllowsBureau reports whether rows of bureau are visible regardless of
// owner. Inventory rows have no owner, so owner-limited scopes see none.
func (s Scope) AllowsBureau(bureau string) bool {
	if s.all {
		return true
	}
	return slices.Contains(s.bureaux, bureau)
}

type identityKey struct{}

// WithIdentity stores the resolved identity in ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// ScopeFromContext is the scope for the identity in ctx; the zero Scope when
// no identity is present.
func ScopeFromContext(ctx context.Context) Scope {
	identity, ok := FromContext(ctx)
	if !ok {
		return Scope{}
	}
	return ScopeFor(identity)
}
