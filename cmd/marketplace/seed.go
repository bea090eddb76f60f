package main

import "github.com/FairForge/marketplace/internal/addons"

// sampleAddons seeds the in-memory store so a local run has pages to serve.
func sampleAddons() []*addons.Addon {
	return []*addons.Addon{
		{ID: 1, Slug: "ublock-origin", Name: "uBlock Origin", Type: addons.TypeExtension,
			Status: addons.StatusPublic, IsListed: true,
			Authors: []addons.Author{{UserID: 1, Role: addons.RoleOwner}}},
		{ID: 2, Slug: "dark-reader", Name: "Dark Reader", Type: addons.TypeExtension,
			Status: addons.StatusPublic, IsListed: true,
			Authors: []addons.Author{{UserID: 2, Role: addons.RoleOwner}}},
		{ID: 3, Slug: "night-sky", Name: "Night Sky", Type: addons.TypeTheme,
			Status: addons.StatusPublic, IsListed: true,
			Authors: []addons.Author{{UserID: 2, Role: addons.RoleOwner}}},
		{ID: 4, Slug: "internal-tools", Name: "Internal Tools", Type: addons.TypeExtension,
			Status: addons.StatusPublic, IsListed: false,
			Authors: []addons.Author{
				{UserID: 1, Role: addons.RoleOwner},
				{UserID: 3, Role: addons.RoleViewer},
			}},
	}
}
