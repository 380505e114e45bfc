// Package tenant carries the tenant scope of a request. The scope is supplied
// by the surrounding layer and trusted as-is.
package tenant

import (
	"context"
	"errors"
)

type contextKey string

const scopeKey contextKey = "tenantScope"

// Wildcard is the tenant id privileged callers use to see every tenant.
const Wildcard = "*"

var ErrMissingScope = errors.New("tenant scope is required")

// Scope restricts repository access to one tenant, or to all tenants when All is set.
type Scope struct {
	TenantID string
	All      bool
}

// For returns the scope of a single tenant.
func For(tenantID string) Scope {
	return Scope{TenantID: tenantID}
}

// AllTenants returns the privileged scope.
func AllTenants() Scope {
	return Scope{All: true}
}

// Parse builds a scope from a raw header value.
func Parse(raw string) (Scope, error) {
	switch raw {
	case "":
		return Scope{}, ErrMissingScope
	case Wildcard:
		return AllTenants(), nil
	}
	return For(raw), nil
}

// Valid reports whether the scope names a tenant or is the wildcard.
func (s Scope) Valid() bool {
	return s.All || s.TenantID != ""
}

// Allows reports whether a row owned by tenantID is visible in the scope.
func (s Scope) Allows(tenantID string) bool {
	return s.All || s.TenantID == tenantID
}

// WithScope returns a copy of ctx carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext extracts the scope stored by WithScope.
func FromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey).(Scope)
	if !ok || !s.Valid() {
		return Scope{}, ErrMissingScope
	}
	return s, nil
}
