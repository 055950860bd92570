// Package protocol defines the wire format spoken over the local socket:
// one JSON payload per newline-terminated line. Every payload carries the
// common envelope fields (code, message, type, state); the type discriminator
// selects the concrete variant. The state token is chosen by the caller and
// echoed verbatim in responses so clients can correlate them to requests.
package protocol

// Payload is the envelope common to every wire message. A code below 1
// marks a client-side or protocol-level failure; the server drops such
// messages without a response.
type Payload struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Type    PayloadType `json:"type"`
	State   string      `json:"state"`
}

// Envelope returns the payload itself so variants embedding it can hand
// back their envelope fields through one accessor.
func (p Payload) Envelope() Payload {
	return p
}

// ListRequest asks the daemon for known uploads matching a free-text query.
type ListRequest struct {
	Payload
	Query string `json:"query"`
}

// ListItem summarizes one catalog entry in a ListResponse.
type ListItem struct {
	Name             string `json:"name"`
	Size             int64  `json:"size"`
	KindCode         int    `json:"kindCode"`
	ModifiedAtMillis int64  `json:"modifiedAtMillis"`
	ContentHash      string `json:"contentHash"`
}

// ListResponse carries the catalog entries matching a ListRequest, in the
// order the catalog returned them.
type ListResponse struct {
	Payload
	Items []ListItem `json:"items"`
}

// NewListResponse builds a LIST_RESPONSE correlated to the given state.
func NewListResponse(code int, message, state string, items []ListItem) *ListResponse {
	return &ListResponse{
		Payload: Payload{Code: code, Message: message, Type: TypeListResponse, State: state},
		Items:   items,
	}
}

// ErrorPayload reports a failure back to the requesting client. The error
// text rides in the envelope message; StackTrace carries diagnostic detail.
type ErrorPayload struct {
	Payload
	StackTrace string `json:"stackTrace"`
}

// NewError builds an ERROR payload echoing the caller's state token. State
// may be empty when the failing request's envelope could not be decoded.
func NewError(message, state, stackTrace string) *ErrorPayload {
	return &ErrorPayload{
		Payload:    Payload{Code: 0, Message: message, Type: TypeError, State: state},
		StackTrace: stackTrace,
	}
}
