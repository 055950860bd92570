package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JUSTIN-BOLAND/HolySheet/internal/metrics"
)

// Client implements Store against a Drive-style REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a store client for the API rooted at baseURL. Every
// request carries a bearer token from tokens.
func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
	}
}

// Get fetches one item by id. With fields set, only those fields are
// projected into the result. A missing item wraps ErrNotFound.
func (c *Client) Get(ctx context.Context, id string, fields ...string) (item *Item, err error) {
	defer observe("get", time.Now(), &err)

	params := url.Values{}
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ", "))
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id), params, nil)
	if err != nil {
		return nil, err
	}

	item = &Item{}
	if err := c.do(req, item); err != nil {
		if ae, ok := AsAPIError(err); ok && ae.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("get %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

// List fetches one page of items matching the query.
func (c *Client) List(ctx context.Context, q Query) (page *ItemPage, err error) {
	defer observe("list", time.Now(), &err)

	params := url.Values{}
	if q.Q != "" {
		params.Set("q", q.Q)
	}
	if q.Fields != "" {
		params.Set("fields", q.Fields)
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/files", params, nil)
	if err != nil {
		return nil, err
	}

	page = &ItemPage{}
	if err := c.do(req, page); err != nil {
		return nil, err
	}
	return page, nil
}

// Create adds a new item and returns it as reported by the store.
func (c *Client) Create(ctx context.Context, item NewItem) (created *Item, err error) {
	defer observe("create", time.Now(), &err)

	req, err := c.newRequest(ctx, http.MethodPost, "/files", nil, item)
	if err != nil {
		return nil, err
	}

	created = &Item{}
	if err := c.do(req, created); err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateProperties replaces the item's property map with props and returns
// the item projected to id and properties. Keys absent from props are
// cleared; merge semantics live in the catalog layer.
func (c *Client) UpdateProperties(ctx context.Context, id string, props map[string]string) (updated *Item, err error) {
	defer observe("update", time.Now(), &err)

	params := url.Values{}
	params.Set("fields", "id, properties")

	body := struct {
		Properties map[string]string `json:"properties"`
	}{Properties: props}

	req, err := c.newRequest(ctx, http.MethodPatch, "/files/"+url.PathEscape(id), params, body)
	if err != nil {
		return nil, err
	}

	updated = &Item{}
	if err := c.do(req, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body any) (*http.Request, error) {
	apiURL := c.baseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError decodes the store's {"error":{code,message,status}} body, falling
// back to the raw body text.
func apiError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "unreadable error body"}
	}

	var decoded struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Error.Message == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     decoded.Error.Status,
		Message:    decoded.Error.Message,
	}
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordDriveRequest(op, time.Since(start), *err == nil)
}
