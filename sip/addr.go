package sip

import (
	"net"
	"strconv"
)

// Addr is a resolved transport endpoint. Hostname preserves the original
// name used to reach it (for logging and for rport/received comparisons)
// even after IP has been filled in by DNS resolution.
type Addr struct {
	IP       net.IP
	Port     int
	Hostname string
}

func (a *Addr) String() string {
	host := a.Hostname
	if host == "" && a.IP != nil {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(a.Port))
}

// ParseAddr splits "host:port" into its parts.
func ParseAddr(addr string) (host string, port int, err error) {
	host, pstr, err := net.SplitHostPort(addr)
	if err != nil {
		return host, 0, err
	}
	port, err = strconv.Atoi(pstr)
	return host, port, err
}
