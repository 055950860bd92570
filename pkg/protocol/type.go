package protocol

import (
	"encoding/json"
	"fmt"
)

// PayloadType discriminates the concrete variant carried by a wire payload.
// The set is closed: values outside the table below fail to decode instead
// of silently defaulting.
type PayloadType int

const (
	// TypeUnknown is the zero value and never appears on the wire.
	TypeUnknown PayloadType = iota
	TypeError
	TypeListRequest
	TypeListResponse
	TypeUploadRequest
	TypeDownloadRequest
	TypeRemoveRequest
)

type typeInfo struct {
	name       string
	receivable bool
	sendable   bool
}

var typeTable = map[PayloadType]typeInfo{
	TypeError:           {"ERROR", false, true},
	TypeListRequest:     {"LIST_REQUEST", true, false},
	TypeListResponse:    {"LIST_RESPONSE", false, true},
	TypeUploadRequest:   {"UPLOAD_REQUEST", true, false},
	TypeDownloadRequest: {"DOWNLOAD_REQUEST", true, false},
	TypeRemoveRequest:   {"REMOVE_REQUEST", true, false},
}

var typesByName = func() map[string]PayloadType {
	m := make(map[string]PayloadType, len(typeTable))
	for t, info := range typeTable {
		m[info.name] = t
	}
	return m
}()

// String returns the wire name of the type, or "UNKNOWN" for values
// outside the table.
func (t PayloadType) String() string {
	if info, ok := typeTable[t]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// Receivable reports whether the server accepts this type from a client.
func (t PayloadType) Receivable() bool {
	return typeTable[t].receivable
}

// Sendable reports whether the server may write this type to a client.
func (t PayloadType) Sendable() bool {
	return typeTable[t].sendable
}

// MarshalJSON encodes the type as its wire name.
func (t PayloadType) MarshalJSON() ([]byte, error) {
	info, ok := typeTable[t]
	if !ok {
		return nil, fmt.Errorf("unknown payload type %d", int(t))
	}
	return json.Marshal(info.name)
}

// UnmarshalJSON decodes a wire name, rejecting anything outside the table.
func (t *PayloadType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("payload type: %w", err)
	}
	v, ok := typesByName[name]
	if !ok {
		return fmt.Errorf("unknown payload type %q", name)
	}
	*t = v
	return nil
}
