package ua

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/sipstack/sipstack/sip"
)

// reliableProvisional tracks the RSeq state PRACK needs (RFC 3262): the
// highest RSeq seen so far for one INVITE's provisional responses, so an
// out-of-order or duplicate 1xx (a provisional carrying Require: 100rel
// or an RSeq header) is never PRACKed twice.
type reliableProvisional struct {
	highestRSeq atomic.Uint32
}

// observe reports whether rseq is the next one expected (strictly greater
// than any previously seen for this INVITE), recording it if so.
func (r *reliableProvisional) observe(rseq uint32) bool {
	for {
		prev := r.highestRSeq.Load()
		if rseq <= prev {
			return false
		}
		if r.highestRSeq.CompareAndSwap(prev, rseq) {
			return true
		}
	}
}

// isReliable reports whether res was sent reliably (RFC 3262 4): it
// carries Require: 100rel or an RSeq header. A provisional carrying
// neither is not PRACKed.
func isReliable(res *sip.Response) bool {
	if h := res.GetHeader("Require"); h != nil && has100rel(h.Value()) {
		return true
	}
	if h := res.GetHeader("RSeq"); h != nil {
		return true
	}
	return false
}

func has100rel(value string) bool {
	for _, tok := range strings.Split(value, ",") {
		if strings.TrimSpace(tok) == "100rel" {
			return true
		}
	}
	return false
}

// Prack sends a PRACK for a reliable provisional response received during
// Invite's ringing phase (RFC 3262 7.2), invoked automatically by Invite
// for each 1xx it sees. It is a no-op (returns nil, nil) for a
// provisional that isn't marked 100rel or that has already been
// acknowledged (an earlier/duplicate RSeq).
func (c *Client) Prack(ctx context.Context, call *Call, provisional *sip.Response) (*sip.Response, error) {
	if !isReliable(provisional) {
		return nil, nil
	}
	rseqHeader := provisional.GetHeader("RSeq")
	if rseqHeader == nil {
		return nil, fmt.Errorf("%w: 100rel response missing RSeq", ErrProtocol)
	}
	rseq, ok := parseRSeq(rseqHeader.Value())
	if !ok {
		return nil, fmt.Errorf("%w: malformed RSeq %q", ErrProtocol, rseqHeader.Value())
	}
	if !call.rp.observe(rseq) {
		return nil, nil
	}

	call.mu.Lock()
	tx := call.inviteTx
	call.mu.Unlock()
	if tx == nil {
		return nil, ErrNoDialog
	}

	req := sip.NewPrackRequest(tx.Origin(), provisional, rseq)
	return c.doRequest(ctx, req)
}

func parseRSeq(value string) (uint32, bool) {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
