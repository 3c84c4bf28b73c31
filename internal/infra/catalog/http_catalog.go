package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/domain/ports/adapter"
)

var (
	_ adapter.ResourceCatalog = (*ResourceClient)(nil)
	_ adapter.UserDirectory   = (*DirectoryClient)(nil)
)

// client is the shared HTTP plumbing for the catalog/CMS service's internal
// API. That service owns all CRUD; this core only reads snapshots.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(baseURL, apiKey string) client {
	return client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ResourceClient resolves resource snapshots (price, publish state, file key).
type ResourceClient struct{ client }

func NewResourceClient(baseURL, apiKey string) *ResourceClient {
	return &ResourceClient{newClient(baseURL, apiKey)}
}

// DirectoryClient resolves user snapshots (email, name, active flag). The
// same service fronts both internal APIs in this deployment.
type DirectoryClient struct{ client }

func NewDirectoryClient(baseURL, apiKey string) *DirectoryClient {
	return &DirectoryClient{newClient(baseURL, apiKey)}
}

type resourceDTO struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	IsFree      bool   `json:"isFree"`
	IsPublished bool   `json:"isPublished"`
	AuthorID    string `json:"authorId"`
	FileKey     string `json:"fileKey"`
}

type userDTO struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

func (c *ResourceClient) Lookup(ctx context.Context, resourceID string) (*model.Resource, error) {
	var dto resourceDTO
	if err := c.get(ctx, "/internal/v1/resources/"+resourceID, &dto); err != nil {
		return nil, err
	}
	return &model.Resource{
		ID:          dto.ID,
		Slug:        dto.Slug,
		Title:       dto.Title,
		Price:       dto.Price,
		Currency:    dto.Currency,
		IsFree:      dto.IsFree,
		IsPublished: dto.IsPublished,
		AuthorID:    dto.AuthorID,
		FileKey:     dto.FileKey,
	}, nil
}

func (c *DirectoryClient) Lookup(ctx context.Context, userID string) (*model.User, error) {
	var dto userDTO
	if err := c.get(ctx, "/internal/v1/users/"+userID, &dto); err != nil {
		return nil, err
	}
	return &model.User{ID: dto.ID, Email: dto.Email, Name: dto.Name, IsActive: dto.IsActive}, nil
}

func (c *client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: catalog http %d", domain.ErrOperationFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}
