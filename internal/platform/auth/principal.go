// Package auth identifies the caller of case routes and carries that
// identity on the request context.
package auth

import (
	"context"
	"slices"
)

// RoleAdmin passes every role check.
const RoleAdmin = "admin"

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Roles   []string
}

// HasAnyRole reports whether p holds one of roles, or is an admin.
func (p Principal) HasAnyRole(roles ...string) bool {
	if slices.Contains(p.Roles, RoleAdmin) {
		return true
	}
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored on ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserIDFromContext returns the caller's subject, or "" when anonymous.
func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Subject
}

func RolesFromContext(ctx context.Context) []string {
	p, _ := PrincipalFromContext(ctx)
	return p.Roles
}
