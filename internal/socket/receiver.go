package socket

import "net"

// Receiver observes every raw line a client sends, before dispatch.
type Receiver interface {
	Receive(conn net.Conn, line string)
}

// ReceiverFunc adapts a plain function to the Receiver interface.
type ReceiverFunc func(conn net.Conn, line string)

func (f ReceiverFunc) Receive(conn net.Conn, line string) { f(conn, line) }

type receiverEntry struct {
	id int
	r  Receiver
}

// AddReceiver registers an observer for incoming lines and returns a handle
// for RemoveReceiver. Observers run in registration order on the
// connection's read goroutine, so a slow observer delays subsequent lines
// from that client.
func (s *Server) AddReceiver(r Receiver) int {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	s.nextRecvID++
	s.receivers = append(s.receivers, receiverEntry{id: s.nextRecvID, r: r})
	return s.nextRecvID
}

// RemoveReceiver unregisters the observer registered under the handle.
func (s *Server) RemoveReceiver(id int) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	for i, e := range s.receivers {
		if e.id == id {
			s.receivers = append(s.receivers[:i], s.receivers[i+1:]...)
			return
		}
	}
}

func (s *Server) notifyReceivers(conn net.Conn, line string) {
	s.recvMu.RLock()
	defer s.recvMu.RUnlock()
	for _, e := range s.receivers {
		e.r.Receive(conn, line)
	}
}
