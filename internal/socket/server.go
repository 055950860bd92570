// Package socket serves the line-delimited JSON protocol over TCP. Each
// connection is read line by line; a line is offered to the registered
// receivers in order, then dispatched on its own goroutine. Dispatches are
// never cancelled once started, and responses may be written in a different
// order than their requests arrived. Correlating them is the client's job
// via the state token.
package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JUSTIN-BOLAND/HolySheet/internal/drive"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/logging"
	"github.com/JUSTIN-BOLAND/HolySheet/internal/metrics"
	"github.com/JUSTIN-BOLAND/HolySheet/pkg/protocol"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("socket: server closed")

// maxLineBytes caps a single request line.
const maxLineBytes = 1 << 20

// Catalog is the listing capability requests dispatch into.
type Catalog interface {
	ListUploads(ctx context.Context, path string, starred, trashed bool) []*drive.Item
}

// Server accepts protocol connections and answers requests from the catalog.
type Server struct {
	catalog Catalog

	recvMu     sync.RWMutex
	receivers  []receiverEntry
	nextRecvID int

	connMu sync.Mutex
	conns  map[net.Conn]*clientConn

	mu       sync.Mutex
	listener net.Listener
	closing  bool
}

// NewServer creates a server answering from the given catalog.
func NewServer(catalog Catalog) *Server {
	return &Server{
		catalog: catalog,
		conns:   make(map[net.Conn]*clientConn),
	}
}

// ListenAndServe binds addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Close, then returns ErrServerClosed.
// Each connection is handled on its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	logging.Info("socket server listening", zap.String("addr", l.Addr().String()))
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return ErrServerClosed
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops the listener. Established connections and in-flight
// dispatches are left to finish on their own.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil
	}
	s.closing = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	ctx := logging.WithConn(context.Background(), uuid.NewString())
	log := logging.WithContext(ctx)

	metrics.RecordConnectionOpened()
	defer metrics.RecordConnectionClosed()
	log.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

	c := &clientConn{conn: conn}
	s.connMu.Lock()
	s.conns[conn] = c
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		metrics.RecordLineReceived()
		s.notifyReceivers(conn, line)
		go s.dispatch(ctx, c, line)
	}
	if err := scanner.Err(); err != nil {
		log.Debug("read loop ended", zap.Error(err))
	}
	log.Info("client disconnected")
}

// dispatch answers a single request line. The envelope is probed first for
// the discriminator and routing fields; the matched variant then decodes
// the line in full. Failures past envelope validation are reported to the
// client as ERROR payloads echoing the request's state.
func (s *Server) dispatch(ctx context.Context, c *clientConn, line string) {
	start := time.Now()
	log := logging.WithContext(ctx)

	state := ""
	label := "invalid"
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", zap.Any("panic", r))
			s.send(ctx, c, protocol.NewError(fmt.Sprint(r), state, string(debug.Stack())))
			metrics.RecordDispatch(label, metrics.OutcomeError, time.Since(start))
		}
	}()

	var head protocol.Payload
	if err := json.Unmarshal([]byte(line), &head); err != nil {
		log.Warn("undecodable payload line", zap.Error(err))
		s.send(ctx, c, protocol.NewError("malformed payload: "+err.Error(), state, string(debug.Stack())))
		metrics.RecordDispatch(label, metrics.OutcomeError, time.Since(start))
		return
	}
	state = head.State
	label = head.Type.String()

	if head.Code < 1 {
		log.Warn("received unsuccessful payload",
			zap.Int("code", head.Code),
			zap.String("message", head.Message))
		metrics.RecordDispatch(label, metrics.OutcomeDropped, time.Since(start))
		return
	}

	if !head.Type.Receivable() {
		log.Warn("unreceivable payload type", zap.String("type", label))
		s.send(ctx, c, protocol.NewError("Received unreceivable payload type: "+label, head.State, string(debug.Stack())))
		metrics.RecordDispatch(label, metrics.OutcomeError, time.Since(start))
		return
	}

	switch head.Type {
	case protocol.TypeListRequest:
		var req protocol.ListRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			log.Warn("undecodable list request", zap.Error(err))
			s.send(ctx, c, protocol.NewError("malformed payload: "+err.Error(), head.State, string(debug.Stack())))
			metrics.RecordDispatch(label, metrics.OutcomeError, time.Since(start))
			return
		}
		s.send(ctx, c, s.handleList(ctx, &req))
		metrics.RecordDispatch(label, metrics.OutcomeResponded, time.Since(start))
	default:
		log.Warn("unsupported payload type", zap.String("type", label))
		s.send(ctx, c, protocol.NewError("Unsupported payload type: "+label, head.State, string(debug.Stack())))
		metrics.RecordDispatch(label, metrics.OutcomeError, time.Since(start))
	}
}

// handleList answers LIST_REQUEST from the catalog's upload listing,
// narrowed by a case-insensitive substring match on item names when the
// request carries a query.
func (s *Server) handleList(ctx context.Context, req *protocol.ListRequest) *protocol.ListResponse {
	query := strings.ToLower(strings.TrimSpace(req.Query))

	uploads := s.catalog.ListUploads(ctx, "/", false, false)
	items := make([]protocol.ListItem, 0, len(uploads))
	for _, upload := range uploads {
		if query != "" && !strings.Contains(strings.ToLower(upload.Name), query) {
			continue
		}
		items = append(items, protocol.ListItem{
			Name:             upload.Name,
			Size:             upload.Size,
			KindCode:         upload.Kind().Code(),
			ModifiedAtMillis: upload.ModifiedMillis(),
			ContentHash:      upload.ContentHash(),
		})
	}
	return protocol.NewListResponse(1, "Success", req.State, items)
}

// Send serializes payload and writes it as one line to conn, which must be
// a connection this server accepted. Safe to call from any goroutine; a
// write failure comes back as the error with no retry.
func (s *Server) Send(conn net.Conn, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.SendRaw(conn, string(data))
}

// SendRaw writes line verbatim to conn, newline-terminated, holding the
// connection's write lock so concurrent senders never interleave mid-line.
func (s *Server) SendRaw(conn net.Conn, line string) error {
	s.connMu.Lock()
	c, ok := s.conns[conn]
	s.connMu.Unlock()
	if !ok {
		return fmt.Errorf("connection %s is not served here", conn.RemoteAddr())
	}
	return c.writeLine([]byte(line))
}

func (s *Server) send(ctx context.Context, c *clientConn, payload interface{}) {
	log := logging.WithContext(ctx)
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("response encoding failed", zap.Error(err))
		return
	}
	if err := c.writeLine(data); err != nil {
		log.Debug("response write failed", zap.Error(err))
	}
}

// clientConn serializes writes so concurrent dispatches cannot interleave
// response lines.
type clientConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (c *clientConn) writeLine(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(append(data, '\n'))
	return err
}
