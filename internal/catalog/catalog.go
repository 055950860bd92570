// Package catalog layers the domain's virtual path/tag model on top of the
// remote store's generic list/get/create/update primitives. Folders tagged
// with the directParent property are the catalog's listing roots; path,
// starred and trashed metadata refine listings. The store remains the sole
// source of truth: nothing is cached here beyond the root container memo.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/JUSTIN-BOLAND/HolySheet/internal/drive"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/logging"
)

// RootName is the well-known name of the root container folder.
const RootName = "sheetStore"

// pageSize is the fixed page size for store listings.
const pageSize = 50

// defaultFields is the projection used when a caller does not need a
// custom one.
const defaultFields = "id, name, mimeType, parents, properties, size, modifiedTime, md5Checksum, starred, trashed"

// Property keys recognized on catalog items.
const (
	PropPath         = "path"
	PropDirectParent = "directParent"
	PropStarred      = "starred"
)

// Manager translates catalog operations into store primitives.
type Manager struct {
	store drive.Store

	rootMu sync.Mutex
	root   *drive.Item
}

// NewManager creates a catalog over the given store.
func NewManager(store drive.Store) *Manager {
	return &Manager{store: store}
}

// File fetches one item by id with the store's default projection. A
// missing item yields (nil, nil); every other store error propagates.
func (m *Manager) File(ctx context.Context, id string) (*drive.Item, error) {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, drive.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

// FileWithFields fetches one item by id projecting only the given fields.
// Unlike File, a missing item propagates as an error.
func (m *Manager) FileWithFields(ctx context.Context, id string, fields ...string) (*drive.Item, error) {
	return m.store.Get(ctx, id, fields...)
}

// IDOfName finds the id of a folder whose name contains name, scoped to
// descendants of the root container when inSheetStore is set. Single quotes
// are stripped from the input so it cannot break the query grammar. Any
// lookup failure collapses to a not-found result.
func (m *Manager) IDOfName(ctx context.Context, name string, inSheetStore bool) (string, bool) {
	query := "name contains '" + strings.ReplaceAll(name, "'", "") + "'"

	if inSheetStore {
		root, err := m.Root(ctx)
		if err != nil {
			logging.Debug("root lookup failed during name search", logging.Err(err))
			return "", false
		}
		query = "parents in '" + root.ID + "' and " + query
	}

	files, err := m.Files(ctx, 1, query, drive.KindFolder)
	if err != nil {
		logging.Debug("name search failed", logging.String("name", name), logging.Err(err))
		return "", false
	}
	if len(files) == 0 {
		return "", false
	}
	return files[0].ID, true
}

// ListUploads lists the folders tagged as listing roots whose trashed flag
// equals trashed, filtered by path equality unless starred is set, in which
// case the path filter is dropped and a starred filter added instead. An
// invalid or blank path is treated as the root path. Store errors yield an
// empty result.
func (m *Manager) ListUploads(ctx context.Context, path string, starred, trashed bool) []*drive.Item {
	path = NormalizePath(path)

	pathQuery := ""
	extra := ""
	if starred {
		extra = " and properties has { key='" + PropStarred + "' and value='true' }"
	} else {
		pathQuery = " and properties has { key='" + PropPath + "' and value='" + path + "' }"
	}

	query := "properties has { key='" + PropDirectParent + "' and value='true' }" +
		pathQuery + " and trashed = " + strconv.FormatBool(trashed) + extra

	files, err := m.Files(ctx, -1, query, drive.KindFolder)
	if err != nil {
		logging.Error("listing uploads failed", logging.String("path", path), logging.Err(err))
		return []*drive.Item{}
	}
	return files
}

// AllSheets lists every document tagged as a listing root entry.
func (m *Manager) AllSheets(ctx context.Context) ([]*drive.Item, error) {
	return m.Files(ctx, -1, "properties has { key='"+PropDirectParent+"' and value='true' }", drive.KindDocument)
}

// SheetsUnder lists every document whose parent is the given folder id.
func (m *Manager) SheetsUnder(ctx context.Context, parentID string) ([]*drive.Item, error) {
	return m.Files(ctx, -1, "parents in '"+parentID+"'", drive.KindDocument)
}

// CreateFolder creates a folder with no parent in the store's top level.
func (m *Manager) CreateFolder(ctx context.Context, name string) (*drive.Item, error) {
	return m.CreateFolderIn(ctx, name, nil, nil)
}

// CreateFolderIn creates a folder under parent (nil for top level) carrying
// the given properties.
func (m *Manager) CreateFolderIn(ctx context.Context, name string, parent *drive.Item, properties map[string]string) (*drive.Item, error) {
	item := drive.NewItem{
		Name:       name,
		MimeType:   drive.MimeFolder,
		Properties: properties,
	}
	if parent != nil {
		item.Parents = []string{parent.ID}
	}
	return m.store.Create(ctx, item)
}

// AddProperties merges props over the item's current properties and writes
// the result back: new keys win collisions, all other existing keys stay.
func (m *Manager) AddProperties(ctx context.Context, item *drive.Item, props map[string]string) (*drive.Item, error) {
	combined := make(map[string]string, len(item.Properties)+len(props))
	for k, v := range item.Properties {
		combined[k] = v
	}
	for k, v := range props {
		combined[k] = v
	}
	return m.SetPropertiesByID(ctx, item.ID, combined)
}

// AddPropertiesByID fetches the item's current properties by id, then
// merges like AddProperties.
func (m *Manager) AddPropertiesByID(ctx context.Context, id string, props map[string]string) (*drive.Item, error) {
	item, err := m.FileWithFields(ctx, id, "id", "properties")
	if err != nil {
		return nil, fmt.Errorf("fetch properties of %q: %w", id, err)
	}
	return m.AddProperties(ctx, item, props)
}

// SetProperties replaces the item's whole property map with props, clearing
// every key not present in props. Not interchangeable with AddProperties.
func (m *Manager) SetProperties(ctx context.Context, item *drive.Item, props map[string]string) (*drive.Item, error) {
	return m.SetPropertiesByID(ctx, item.ID, props)
}

// SetPropertiesByID replaces the property map of the item with the given id.
func (m *Manager) SetPropertiesByID(ctx context.Context, id string, props map[string]string) (*drive.Item, error) {
	return m.store.UpdateProperties(ctx, id, props)
}

// Files pages through store items matching the query and kinds using the
// default field projection. See FilesWithFields.
func (m *Manager) Files(ctx context.Context, limit int, query string, kinds ...drive.Kind) ([]*drive.Item, error) {
	return m.FilesWithFields(ctx, limit, query, defaultFields, kinds...)
}

// FilesWithFields pages through store items matching an OR of the kind
// filters combined with the optional free-text query, accumulating until
// limit items are collected or pages run out. A limit of -1 means unbounded
// and forces a full remote traversal; use sparingly. Items whose kind the
// store returned despite the filter are dropped, so at least one kind must
// be given. Pages are fetched sequentially to keep a single token cursor.
func (m *Manager) FilesWithFields(ctx context.Context, limit int, query, fields string, kinds ...drive.Kind) ([]*drive.Item, error) {
	wanted := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		wanted[k.Mime()] = true
	}

	var found []*drive.Item
	pageToken := ""
	for {
		page, err := m.store.List(ctx, drive.Query{
			Q:         buildQuery(query, kinds),
			Fields:    "nextPageToken, files(" + fields + ")",
			PageSize:  pageSize,
			PageToken: pageToken,
		})
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			if !wanted[item.MimeType] {
				continue
			}
			found = append(found, item)
			limit--
			if limit == 0 {
				return found, nil
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return found, nil
}

// Root resolves the root container folder, finding an existing one by name
// or creating it, and memoizes the result for the process lifetime. The
// find-or-create runs under a mutex so concurrent first calls resolve to a
// single folder; independent processes racing each other can still create
// duplicates since the store offers no locking.
func (m *Manager) Root(ctx context.Context) (*drive.Item, error) {
	m.rootMu.Lock()
	defer m.rootMu.Unlock()

	if m.root != nil {
		return m.root, nil
	}

	found, err := m.Files(ctx, 1, "name = '"+RootName+"'", drive.KindFolder)
	if err != nil {
		return nil, fmt.Errorf("find root container: %w", err)
	}
	if len(found) > 0 {
		m.root = found[0]
		return m.root, nil
	}

	created, err := m.CreateFolder(ctx, RootName)
	if err != nil {
		return nil, fmt.Errorf("create root container: %w", err)
	}
	logging.Info("created root container", logging.String("id", created.ID))
	m.root = created
	return m.root, nil
}

// buildQuery combines the kind filters with the free-text query.
func buildQuery(query string, kinds []drive.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = "mimeType = '" + k.Mime() + "'"
	}

	q := strings.Join(parts, " or ")
	if len(parts) > 1 {
		q = "(" + q + ")"
	}

	if query == "" {
		return q
	}
	if q == "" {
		return query
	}
	return q + " and " + query
}
