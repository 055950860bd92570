// Package drive talks to the remote object store: a Drive-style REST API
// addressing files and folders by opaque id, with a textual query grammar
// for listing and free-form string properties as the metadata channel. The
// catalog layer depends only on the Store interface; nothing in this
// package caches store state.
package drive

import "context"

// TokenSource yields a ready-to-use bearer token for store requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Query selects a page of items. Q uses the store's filter grammar
// (mimeType =, parents in, name contains, trashed =, properties has
// {key=... and value=...} combined with and/or). Fields is the partial
// response projection, e.g. "nextPageToken, files(id, name, properties)".
type Query struct {
	Q         string
	Fields    string
	PageSize  int
	PageToken string
}

// ItemPage is one page of list results. An empty NextPageToken means the
// listing is exhausted.
type ItemPage struct {
	Items         []*Item `json:"files"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// NewItem describes an item to create.
type NewItem struct {
	Name       string            `json:"name,omitempty"`
	MimeType   string            `json:"mimeType,omitempty"`
	Parents    []string          `json:"parents,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Store is the remote boundary the catalog depends on. Get distinguishes
// missing items with ErrNotFound; every other failure is an *APIError or a
// transport error. Implementations never retry.
type Store interface {
	Get(ctx context.Context, id string, fields ...string) (*Item, error)
	List(ctx context.Context, q Query) (*ItemPage, error)
	Create(ctx context.Context, item NewItem) (*Item, error)
	UpdateProperties(ctx context.Context, id string, props map[string]string) (*Item, error)
}
