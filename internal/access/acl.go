// Package access decides who may see an add-on.
package access

import (
	"context"
	"net/http"
	"strings"

	"github.com/FairForge/marketplace/internal/addons"
)

// Permissions are "App:Action" pairs. "*" matches any app or action.
const (
	PermAddonsEdit           = "Addons:Edit"
	PermAddonsReviewUnlisted = "Addons:ReviewUnlisted"
	PermSuperuser            = "*:*"
)

// User is the authenticated principal of a request.
type User struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions,omitempty"`
}

type contextKey string

const userKey contextKey = "user"

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the request user, or nil when anonymous.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userKey).(*User)
	return u
}

// ActionAllowed reports whether u holds app:action, honouring wildcards.
func ActionAllowed(u *User, app, action string) bool {
	if u == nil {
		return false
	}
	for _, perm := range u.Permissions {
		pApp, pAction, ok := strings.Cut(perm, ":")
		if !ok {
			continue
		}
		if (pApp == "*" || pApp == app) && (pAction == "*" || pAction == action) {
			return true
		}
	}
	return false
}

// CheckUnlistedAddonsReviewer reports whether the caller may review
// unlisted add-ons.
func CheckUnlistedAddonsReviewer(r *http.Request) bool {
	return ActionAllowed(UserFromContext(r.Context()), "Addons", "ReviewUnlisted")
}

// OwnershipOptions selects which relations count as ownership.
// Owners always qualify.
type OwnershipOptions struct {
	Admin          bool // Addons:Edit bypasses the author check
	Dev            bool
	Viewer         bool
	Support        bool
	IgnoreDisabled bool
}

// CheckAddonOwnership reports whether the caller holds an accepted
// relation to a.
func CheckAddonOwnership(r *http.Request, a *addons.Addon, opts OwnershipOptions) bool {
	u := UserFromContext(r.Context())
	if u == nil {
		return false
	}
	if a.IsDeleted() {
		return false
	}
	if opts.Admin && ActionAllowed(u, "Addons", "Edit") {
		return true
	}
	if a.IsDisabled() && !opts.IgnoreDisabled {
		return false
	}

	roles := []addons.Role{addons.RoleOwner}
	if opts.Dev {
		roles = append(roles, addons.RoleDeveloper)
	}
	if opts.Viewer {
		roles = append(roles, addons.RoleViewer)
	}
	if opts.Support {
		roles = append(roles, addons.RoleSupport)
	}
	return a.HasAuthor(u.ID, roles...)
}

// CanView applies the unlisted visibility policy: listed add-ons are
// visible to everyone, unlisted ones only to unlisted reviewers and to
// owners, developers, viewers and support staff of the add-on.
func CanView(r *http.Request, a *addons.Addon) bool {
	if a.IsListed {
		return true
	}
	return CheckUnlistedAddonsReviewer(r) || CheckAddonOwnership(r, a, OwnershipOptions{
		Admin:   false,
		Dev:     true,
		Viewer:  true,
		Support: true,
	})
}
