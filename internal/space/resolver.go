// Package space resolves a caller's identity into the spaces a request
// may read and the space it writes to.
package space

import (
	"context"
	"sort"
	"strings"

	"github.com/rcliao/mnemosyne/internal/model"
)

// MembershipStore is the storage the resolver needs.
type MembershipStore interface {
	EnsurePersonalSpace(ctx context.Context, userID string) (*model.Space, error)
	ResolveMembership(ctx context.Context, userID string) ([]model.Space, error)
}

// Resolver turns (user, target space) into a request Scope.
type Resolver struct {
	store MembershipStore
}

// NewResolver returns a Resolver backed by store.
func NewResolver(store MembershipStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes the allowed spaces of userID and picks the write space.
// An empty target writes to the personal space, which is created on first
// use. A target the user is not a member of fails with access denied.
func (r *Resolver) Resolve(ctx context.Context, userID, target string) (model.Scope, error) {
	const op = "resolve_space"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Scope{}, model.Invalid(op, "caller identity is required")
	}

	personal, err := r.store.EnsurePersonalSpace(ctx, userID)
	if err != nil {
		return model.Scope{}, model.Unavailable(op, err)
	}
	spaces, err := r.store.ResolveMembership(ctx, userID)
	if err != nil {
		return model.Scope{}, model.Unavailable(op, err)
	}

	seen := map[string]bool{personal.ID: true}
	allowed := []string{personal.ID}
	for _, sp := range spaces {
		if !seen[sp.ID] {
			seen[sp.ID] = true
			allowed = append(allowed, sp.ID)
		}
	}
	sort.Strings(allowed)

	scope := model.Scope{UserID: userID, WriteSpace: personal.ID, Allowed: allowed}

	target = strings.TrimSpace(target)
	if target != "" {
		if !seen[target] {
			return model.Scope{}, model.Denied(op, "user %s is not a member of space %s", userID, target)
		}
		scope.WriteSpace = target
	}
	return scope, nil
}
