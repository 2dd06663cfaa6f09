package sip

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// connectionPool keys pooled, connection-oriented sockets (TCP/TLS/WS/WSS)
// by remote address so repeated requests to the same peer reuse one
// socket instead of dialing again.
type connectionPool struct {
	mu    sync.RWMutex
	conns map[string]Connection
	log   zerolog.Logger
}

func newConnectionPool(log zerolog.Logger) *connectionPool {
	return &connectionPool{
		conns: make(map[string]Connection),
		log:   log.With().Str("component", "connectionpool").Logger(),
	}
}

func (p *connectionPool) Get(addr string) Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conns[addr]
}

func (p *connectionPool) Add(addr string, c Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[addr] = c
	c.Ref(1)
}

func (p *connectionPool) Delete(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, addr)
}

func (p *connectionPool) CloseAndDeleteAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, c := range p.conns {
		if err := c.Close(); err != nil {
			p.log.Debug().Err(err).Str("addr", addr).Msg("closing pooled connection")
		}
	}
	p.conns = make(map[string]Connection)
}

// refcountedConn embeds a simple atomic reference count shared by all of
// this package's Connection implementations.
type refcountedConn struct {
	ref int32
}

func (c *refcountedConn) Ref(i int) int {
	return int(atomic.AddInt32(&c.ref, int32(i)))
}

func (c *refcountedConn) refCount() int {
	return int(atomic.LoadInt32(&c.ref))
}
