package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/JUSTIN-BOLAND/HolySheet/internal/drive"
	"github.com/JUSTIN-BOLAND/HolySheet/pkg/protocol"
)

type listCall struct {
	path             string
	starred, trashed bool
}

type fakeCatalog struct {
	mu    sync.Mutex
	items []*drive.Item
	calls []listCall
}

func (f *fakeCatalog) ListUploads(ctx context.Context, path string, starred, trashed bool) []*drive.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, listCall{path: path, starred: starred, trashed: trashed})
	return f.items
}

func startServer(t *testing.T, catalog Catalog) (*Server, net.Addr) {
	t.Helper()
	srv := NewServer(catalog)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })
	return srv, l.Addr()
}

func dialServer(t *testing.T, addr net.Addr) (net.Conn, *bufio.Scanner) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return conn, sc
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readLine(t *testing.T, conn net.Conn, sc *bufio.Scanner) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if !sc.Scan() {
		t.Fatalf("expected a response line, got none: %v", sc.Err())
	}
	return sc.Text()
}

func upload(name string, size int64, modified time.Time, hash string) *drive.Item {
	return &drive.Item{
		Name:         name,
		MimeType:     drive.MimeFolder,
		Size:         size,
		ModifiedTime: modified,
		MD5Checksum:  hash,
	}
}

func TestListRequestAnswersWithCatalogItems(t *testing.T) {
	modified := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	catalog := &fakeCatalog{items: []*drive.Item{
		upload("quarterly", 1234, modified, "abc123"),
		upload("notes", 8, modified, "def456"),
	}}
	_, addr := startServer(t, catalog)
	conn, sc := dialServer(t, addr)

	sendLine(t, conn, `{"code":1,"type":"LIST_REQUEST","state":"abc","query":""}`)

	var resp protocol.ListResponse
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != protocol.TypeListResponse {
		t.Fatalf("type = %v, want LIST_RESPONSE", resp.Type)
	}
	if resp.Code != 1 || resp.State != "abc" {
		t.Fatalf("code/state = %d/%q, want 1/abc", resp.Code, resp.State)
	}
	if resp.Message != "Success" {
		t.Errorf("message = %q, want Success", resp.Message)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	first := resp.Items[0]
	if first.Name != "quarterly" || first.Size != 1234 || first.KindCode != 1 {
		t.Errorf("first item = %+v", first)
	}
	if first.ModifiedAtMillis != modified.UnixMilli() {
		t.Errorf("modified = %d, want %d", first.ModifiedAtMillis, modified.UnixMilli())
	}
	if first.ContentHash != "abc123" {
		t.Errorf("hash = %q, want abc123", first.ContentHash)
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if len(catalog.calls) != 1 {
		t.Fatalf("expected 1 catalog call, got %d", len(catalog.calls))
	}
	if c := catalog.calls[0]; c.path != "/" || c.starred || c.trashed {
		t.Errorf("catalog called with %+v, want root untrashed listing", c)
	}
}

func TestListRequestFiltersByQuery(t *testing.T) {
	catalog := &fakeCatalog{items: []*drive.Item{
		upload("Quarterly-Report", 1, time.Time{}, "h1"),
		upload("notes", 2, time.Time{}, "h2"),
	}}
	_, addr := startServer(t, catalog)
	conn, sc := dialServer(t, addr)

	sendLine(t, conn, `{"code":1,"type":"LIST_REQUEST","state":"abc","query":"report"}`)

	var resp protocol.ListResponse
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Name != "Quarterly-Report" {
		t.Fatalf("filtered items = %v", resp.Items)
	}
}

func TestUnsuccessfulEnvelopeGetsNoResponse(t *testing.T) {
	_, addr := startServer(t, &fakeCatalog{})
	conn, sc := dialServer(t, addr)

	sendLine(t, conn, `{"code":0,"type":"LIST_REQUEST","state":"x"}`)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if sc.Scan() {
		t.Fatalf("expected no response, got %q", sc.Text())
	}
}

func TestUnreceivableTypeGetsError(t *testing.T) {
	_, addr := startServer(t, &fakeCatalog{})
	conn, sc := dialServer(t, addr)

	sendLine(t, conn, `{"code":1,"type":"LIST_RESPONSE","state":"s-1"}`)

	var errPayload protocol.ErrorPayload
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &errPayload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errPayload.Type != protocol.TypeError {
		t.Fatalf("type = %v, want ERROR", errPayload.Type)
	}
	if errPayload.State != "s-1" {
		t.Errorf("state = %q, want s-1", errPayload.State)
	}
	if want := "Received unreceivable payload type: LIST_RESPONSE"; errPayload.Message != want {
		t.Errorf("message = %q, want %q", errPayload.Message, want)
	}
}

func TestUnsupportedTypeGetsError(t *testing.T) {
	_, addr := startServer(t, &fakeCatalog{})
	conn, sc := dialServer(t, addr)

	sendLine(t, conn, `{"code":1,"type":"UPLOAD_REQUEST","state":"u-1"}`)

	var errPayload protocol.ErrorPayload
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &errPayload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errPayload.State != "u-1" {
		t.Errorf("state = %q, want u-1", errPayload.State)
	}
	if want := "Unsupported payload type: UPLOAD_REQUEST"; errPayload.Message != want {
		t.Errorf("message = %q, want %q", errPayload.Message, want)
	}
}

func TestInvalidJSONGetsErrorAndLoopSurvives(t *testing.T) {
	_, addr := startServer(t, &fakeCatalog{})
	conn, sc := dialServer(t, addr)

	sendLine(t, conn, `this is not json`)

	var errPayload protocol.ErrorPayload
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &errPayload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errPayload.Type != protocol.TypeError || errPayload.Message == "" {
		t.Fatalf("expected an ERROR with a message, got %+v", errPayload)
	}

	sendLine(t, conn, `{"code":1,"type":"LIST_REQUEST","state":"after","query":""}`)

	var resp protocol.ListResponse
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != protocol.TypeListResponse || resp.State != "after" {
		t.Fatalf("expected the loop to keep serving, got %+v", resp.Payload)
	}
}

func TestReceiversSeeRawLinesInOrder(t *testing.T) {
	srv, addr := startServer(t, &fakeCatalog{})

	seen := make(chan string, 8)
	srv.AddReceiver(ReceiverFunc(func(_ net.Conn, line string) { seen <- "a:" + line }))
	srv.AddReceiver(ReceiverFunc(func(_ net.Conn, line string) { seen <- "b:" + line }))

	conn, _ := dialServer(t, addr)
	sendLine(t, conn, `{"code":0,"type":"LIST_REQUEST","state":"one"}`)
	sendLine(t, conn, `{"code":0,"type":"LIST_REQUEST","state":"two"}`)

	want := []string{
		`a:{"code":0,"type":"LIST_REQUEST","state":"one"}`,
		`b:{"code":0,"type":"LIST_REQUEST","state":"one"}`,
		`a:{"code":0,"type":"LIST_REQUEST","state":"two"}`,
		`b:{"code":0,"type":"LIST_REQUEST","state":"two"}`,
	}
	for i, w := range want {
		select {
		case got := <-seen:
			if got != w {
				t.Fatalf("observation %d = %q, want %q", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for observation %d", i)
		}
	}
}

func TestRemoveReceiverStopsObservation(t *testing.T) {
	srv, addr := startServer(t, &fakeCatalog{})

	seen := make(chan string, 8)
	id := srv.AddReceiver(ReceiverFunc(func(_ net.Conn, line string) { seen <- line }))

	conn, _ := dialServer(t, addr)
	sendLine(t, conn, `{"code":0,"type":"LIST_REQUEST","state":"one"}`)
	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first observation")
	}

	srv.RemoveReceiver(id)
	sendLine(t, conn, `{"code":0,"type":"LIST_REQUEST","state":"two"}`)
	select {
	case got := <-seen:
		t.Fatalf("removed receiver still observed %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReceiverCanSendBackToItsConnection(t *testing.T) {
	srv, addr := startServer(t, &fakeCatalog{})

	srv.AddReceiver(ReceiverFunc(func(conn net.Conn, line string) {
		if err := srv.Send(conn, protocol.NewError("observed", "obs-1", "")); err != nil {
			t.Errorf("send from receiver: %v", err)
		}
	}))

	conn, sc := dialServer(t, addr)
	sendLine(t, conn, `{"code":0,"type":"LIST_REQUEST","state":"ignored"}`)

	var errPayload protocol.ErrorPayload
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &errPayload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errPayload.Message != "observed" || errPayload.State != "obs-1" {
		t.Fatalf("payload = %+v", errPayload.Payload)
	}
}

// gatedCatalog blocks its first listing until released, so a later request
// can demonstrably finish first.
type gatedCatalog struct {
	items   []*drive.Item
	started chan struct{}
	release chan struct{}
	first   sync.Once
}

func (g *gatedCatalog) ListUploads(ctx context.Context, path string, starred, trashed bool) []*drive.Item {
	blocked := false
	g.first.Do(func() {
		close(g.started)
		blocked = true
	})
	if blocked {
		<-g.release
	}
	return g.items
}

func TestResponsesMayOvertakeSlowRequests(t *testing.T) {
	catalog := &gatedCatalog{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	_, addr := startServer(t, catalog)
	conn, sc := dialServer(t, addr)

	sendLine(t, conn, `{"code":1,"type":"LIST_REQUEST","state":"first","query":""}`)
	select {
	case <-catalog.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first dispatch to start")
	}
	sendLine(t, conn, `{"code":1,"type":"LIST_REQUEST","state":"second","query":""}`)

	var resp protocol.ListResponse
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "second" {
		t.Fatalf("first response state = %q, want the unblocked request", resp.State)
	}

	close(catalog.release)
	if err := json.Unmarshal([]byte(readLine(t, conn, sc)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "first" {
		t.Fatalf("second response state = %q, want the released request", resp.State)
	}
}

func TestCloseStopsServing(t *testing.T) {
	srv := NewServer(&fakeCatalog{})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != ErrServerClosed {
			t.Fatalf("Serve returned %v, want ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
