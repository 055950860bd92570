package drive

import "time"

// Kind classifies a remote item by its store-native MIME type. Only folders
// and documents are meaningful to the catalog; everything else is OTHER.
type Kind int

const (
	KindOther Kind = iota
	KindFolder
	KindDocument
)

// Store-native MIME type tags for the kinds the catalog works with.
const (
	MimeFolder   = "application/vnd.google-apps.folder"
	MimeDocument = "application/vnd.google-apps.spreadsheet"
)

// Mime returns the store-native MIME type for the kind, "" for OTHER.
func (k Kind) Mime() string {
	switch k {
	case KindFolder:
		return MimeFolder
	case KindDocument:
		return MimeDocument
	}
	return ""
}

// Code returns the numeric code listed in wire summaries.
func (k Kind) Code() int {
	switch k {
	case KindFolder:
		return 1
	case KindDocument:
		return 2
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "FOLDER"
	case KindDocument:
		return "DOCUMENT"
	}
	return "OTHER"
}

// KindOfMime maps a store MIME type to its domain kind.
func KindOfMime(mime string) Kind {
	switch mime {
	case MimeFolder:
		return KindFolder
	case MimeDocument:
		return KindDocument
	}
	return KindOther
}

// Item is one node in the remote store. Fields beyond id/name/mimeType are
// populated only when the request projected them.
type Item struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name,omitempty"`
	MimeType     string            `json:"mimeType,omitempty"`
	Parents      []string          `json:"parents,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	Size         int64             `json:"size,omitempty,string"`
	ModifiedTime time.Time         `json:"modifiedTime"`
	MD5Checksum  string            `json:"md5Checksum,omitempty"`
	Starred      bool              `json:"starred,omitempty"`
	Trashed      bool              `json:"trashed,omitempty"`
}

// Kind derives the domain classification from the MIME type.
func (it *Item) Kind() Kind {
	return KindOfMime(it.MimeType)
}

// ModifiedMillis returns the modification time in Unix milliseconds, 0 when
// the projection did not include it.
func (it *Item) ModifiedMillis() int64 {
	if it.ModifiedTime.IsZero() {
		return 0
	}
	return it.ModifiedTime.UnixMilli()
}

// ContentHash returns the store checksum, falling back to the item id for
// items the store does not checksum (folders, native documents).
func (it *Item) ContentHash() string {
	if it.MD5Checksum != "" {
		return it.MD5Checksum
	}
	return it.ID
}

// Property returns the value stored under key, "" when absent.
func (it *Item) Property(key string) string {
	return it.Properties[key]
}
