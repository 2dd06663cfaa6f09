// Package fakes provides in-memory net.Conn/net.PacketConn doubles for
// driving the transport layer's read loops in tests without opening a
// real socket.
package fakes

import (
	"net"
	"testing"
)

type TestConnection interface {
	TestReadConn(t testing.TB) []byte
	TestWriteConn(t testing.TB, data []byte)
	TestRequest(t testing.TB, data []byte) []byte
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
