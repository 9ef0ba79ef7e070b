package server

import (
	"net"
	"sync"
)

// handoffListener is the net.Listener given to http.Server. It yields connections that
// already completed their TLS handshake.
type handoffListener struct {
	addr  net.Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

var _ net.Listener = (*handoffListener)(nil)

func newHandoffListener() *handoffListener {
	return &handoffListener{
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

func (l *handoffListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *handoffListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *handoffListener) Addr() net.Addr {
	if l.addr == nil {
		return &net.TCPAddr{}
	}
	return l.addr
}

// deliver blocks until conn is accepted or the listener is closed. It returns false when
// the connection was not handed over and still belongs to the caller.
func (l *handoffListener) deliver(conn net.Conn) bool {
	select {
	case l.conns <- conn:
		return true
	case <-l.done:
		return false
	}
}
