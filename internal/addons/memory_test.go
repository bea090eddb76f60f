package addons

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lookups(t *testing.T) {
	s := NewMemoryStore(
		&Addon{ID: 1, Slug: "ublock", Status: StatusPublic, Type: TypeExtension},
		&Addon{ID: 2, Slug: "old-theme", Status: StatusDisabled, Type: TypeTheme},
	)
	ctx := context.Background()

	a, err := s.All().ByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ublock", a.Slug)

	a, err = s.All().BySlug(ctx, "old-theme")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.ID)

	_, err = s.All().ByID(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ValidHidesDisabled(t *testing.T) {
	s := NewMemoryStore(&Addon{ID: 2, Slug: "old-theme", Status: StatusDisabled})

	_, err := s.Valid().ByID(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Valid().BySlug(context.Background(), "old-theme")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_FilterByType(t *testing.T) {
	s := NewMemoryStore(
		&Addon{ID: 1, Slug: "ublock", Status: StatusPublic, Type: TypeExtension},
		&Addon{ID: 2, Slug: "dark", Status: StatusPublic, Type: TypeTheme},
	)
	qs := s.Filter(Filter{Types: []Type{TypeTheme}})

	_, err := qs.ByID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := qs.ByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "dark", a.Slug)
}

func TestMemoryStore_PutCopies(t *testing.T) {
	orig := &Addon{ID: 1, Slug: "a", Status: StatusPublic}
	s := NewMemoryStore(orig)
	orig.Slug = "mutated"

	a, err := s.All().ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a", a.Slug)
}

func TestAddon_HasAuthor(t *testing.T) {
	a := &Addon{Authors: []Author{{UserID: 7, Role: RoleViewer}}}
	assert.True(t, a.HasAuthor(7, RoleOwner, RoleViewer))
	assert.False(t, a.HasAuthor(7, RoleOwner))
	assert.False(t, a.HasAuthor(8, RoleViewer))
}

func TestMemoryStore_ReadsDoNotShareAuthors(t *testing.T) {
	s := NewMemoryStore(&Addon{ID: 1, Slug: "a", Status: StatusPublic,
		Authors: []Author{{UserID: 7, Role: RoleViewer}}})
	ctx := context.Background()

	a, err := s.All().ByID(ctx, 1)
	require.NoError(t, err)
	a.Authors[0].Role = RoleOwner

	b, err := s.All().BySlug(ctx, "a")
	require.NoError(t, err)
	b.Authors[0].UserID = 8

	got, err := s.All().ByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Author{{UserID: 7, Role: RoleViewer}}, got.Authors)
}

func TestMemoryStore_PutRejectsDuplicateSlug(t *testing.T) {
	s := NewMemoryStore(&Addon{ID: 1, Slug: "ublock", Status: StatusPublic})

	err := s.Put(&Addon{ID: 2, Slug: "ublock", Status: StatusPublic})
	assert.ErrorIs(t, err, ErrDuplicateSlug)

	_, err = s.All().ByID(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotFound)

	// Replacing the owner of the slug is fine.
	require.NoError(t, s.Put(&Addon{ID: 1, Slug: "ublock", Name: "uBlock Origin", Status: StatusPublic}))

	assert.Panics(t, func() {
		NewMemoryStore(&Addon{ID: 1, Slug: "x"}, &Addon{ID: 2, Slug: "x"})
	})
}
