package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// KeyLister lists the keys of a persistent store.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// StoreHandler exposes the persistent key-value store for inspection.
type StoreHandler struct {
	store KeyLister
}

// NewStoreHandler creates a store handler. store may be nil when running
// without persistence.
func NewStoreHandler(store KeyLister) *StoreHandler {
	return &StoreHandler{store: store}
}

// RegisterRoutes registers store routes with Huma.
func (h *StoreHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/store/keys", h.ListKeys, huma.OperationTags("health"))
}

// KeysOutput is the response for listing keys.
type KeysOutput struct {
	Body struct {
		Keys []string `json:"keys" doc:"Stored keys"`
	}
}

// ListKeys returns all stored keys.
func (h *StoreHandler) ListKeys(ctx context.Context, input *struct{}) (*KeysOutput, error) {
	if h.store == nil {
		return nil, huma.Error503ServiceUnavailable("Store not available")
	}

	keys, err := h.store.Keys(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list keys", err)
	}
	if keys == nil {
		keys = []string{}
	}

	out := &KeysOutput{}
	out.Body.Keys = keys
	return out, nil
}
