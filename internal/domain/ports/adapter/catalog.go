package adapter

import (
	"context"

	"resource-marketplace/internal/domain/model"
)

// ResourceCatalog is the read-only port to the catalog service that owns
// resources, categories and reviews. This core only needs lookups.
type ResourceCatalog interface {
	Lookup(ctx context.Context, resourceID string) (*model.Resource, error)
}

// UserDirectory is the read-only port to the service owning user accounts.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (*model.User, error)
}
