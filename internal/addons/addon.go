// Package addons holds the add-on entity and the lookups used to resolve it.
package addons

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no add-on matches a lookup.
var ErrNotFound = errors.New("addons: not found")

// ErrDuplicateSlug is returned when a slug is already taken by another add-on.
var ErrDuplicateSlug = errors.New("addons: duplicate slug")

// Type is the kind of installable package.
type Type int

const (
	TypeExtension    Type = 1
	TypeTheme        Type = 2
	TypeDictionary   Type = 3
	TypeLanguagePack Type = 5
)

// Status is the review state of an add-on.
type Status int

const (
	StatusIncomplete Status = 0
	StatusNominated  Status = 3
	StatusPublic     Status = 4
	StatusDisabled   Status = 5
	StatusDeleted    Status = 11
)

// Role is a user's relation to an add-on.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
	RoleSupport   Role = "support"
)

// Author links a user to an add-on with a role.
type Author struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// Addon is an installable browser extension or package.
type Addon struct {
	ID       int64    `json:"id"`
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Type     Type     `json:"type"`
	Status   Status   `json:"status"`
	IsListed bool     `json:"is_listed"`
	Authors  []Author `json:"authors,omitempty"`
}

// IsDeleted reports whether the add-on was deleted.
func (a *Addon) IsDeleted() bool { return a.Status == StatusDeleted }

// IsDisabled reports whether the add-on was disabled by an admin.
func (a *Addon) IsDisabled() bool { return a.Status == StatusDisabled }

// HasAuthor reports whether userID holds any of roles on the add-on.
func (a *Addon) HasAuthor(userID int64, roles ...Role) bool {
	for _, au := range a.Authors {
		if au.UserID != userID {
			continue
		}
		for _, r := range roles {
			if au.Role == r {
				return true
			}
		}
	}
	return false
}

// QuerySet resolves single add-ons. Both lookups return ErrNotFound
// when nothing in the set matches.
type QuerySet interface {
	ByID(ctx context.Context, id int64) (*Addon, error)
	BySlug(ctx context.Context, slug string) (*Addon, error)
}

// Filter narrows a QuerySet. Empty fields match everything.
type Filter struct {
	Types    []Type
	Statuses []Status
}

// Match reports whether a passes the filter.
func (f Filter) Match(a *Addon) bool {
	if len(f.Types) > 0 && !containsType(f.Types, a.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	return true
}

// ValidStatuses are the states visible on the public site.
var ValidStatuses = []Status{StatusNominated, StatusPublic}

// Store is the source of add-on query sets.
type Store interface {
	All() QuerySet
	Valid() QuerySet
	Filter(f Filter) QuerySet
}

func containsType(ts []Type, t Type) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(ss []Status, s Status) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
