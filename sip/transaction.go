package sip

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SIP timers (RFC 3261 17.1.1.2 / 17.2.2). SetTimers lets callers retune
// them for lossy or high-latency links; the defaults assume a LAN/Internet
// RTT budget.
var (
	T1, T2, T4                                    time.Duration
	TimerA, TimerB, TimerD                        time.Duration
	TimerE, TimerF, TimerG, TimerH, TimerI         time.Duration
	TimerJ, TimerK                                time.Duration
	TimerL, TimerM                                 time.Duration
	Timer1xx = 200 * time.Millisecond

	TransactionFSMDebug bool
)

func init() {
	SetTimers(500*time.Millisecond, 4*time.Second, 5*time.Second)
}

// SetTimers derives the RFC 3261 timers from T1/T2/T4; Timer D stays at
// its fixed 32s.
func SetTimers(t1, t2, t4 time.Duration) {
	T1, T2, T4 = t1, t2, t4
	TimerA = T1
	TimerB = 64 * T1
	TimerD = 32 * time.Second
	TimerE = T1
	TimerF = 64 * T1
	TimerG = T1
	TimerH = 64 * T1
	TimerI = T4
	TimerJ = 64 * T1
	TimerK = T4
	TimerL = 64 * T1
	TimerM = 64 * T1
}

// ErrTransactionTimeout etc. (sip/errors.go) are detectable via errors.Is
// on whatever Transaction.Err() / a failed send returns (RFC 3261 8.1.3.1).

func wrapTransportError(err error) error {
	return fmt.Errorf("%w: %s", ErrTransactionTransport, err)
}

func wrapTimeoutError(err error) error {
	return fmt.Errorf("%w: %s", ErrTransactionTimeout, err)
}

// Transaction is the behavior common to client and server transactions
// (RFC 3261 17).
type Transaction interface {
	Terminate()

	// OnTerminate registers a callback for when the transaction's FSM
	// reaches a terminated state. Returns false if already terminated.
	// The callback must not call back into the transaction: it runs with
	// the FSM lock held.
	OnTerminate(f FnTxTerminate) bool

	// Done closes when the transaction terminates.
	Done() <-chan struct{}

	// Err is the error that ended the transaction, if any.
	Err() error
}

// ServerTransaction is the receiving side of a request (RFC 3261 17.2).
type ServerTransaction interface {
	Transaction

	// Respond sends res, which must already carry the headers
	// NewResponseFromRequest produces.
	Respond(res *Response) error

	// Acks delivers ACKs an INVITE server transaction receives: the ACK for
	// a non-2xx final response, and an ACK arriving in the Accepted state
	// after a 2xx. Non-INVITE transactions never deliver on it.
	Acks() <-chan *Request

	// OnCancel fires when a CANCEL matching this transaction arrives.
	OnCancel(f FnTxCancel) bool
}

// ServerTransactionContext derives a context that cancels when tx
// terminates, for plumbing into handler code that wants ctx.Done().
func ServerTransactionContext(tx ServerTransaction) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	done := tx.OnTerminate(func(key string, err error) { cancel() })
	if done {
		cancel()
	}
	return ctx
}

// ClientTransaction is the sending side of a request (RFC 3261 17.1).
type ClientTransaction interface {
	Transaction

	// Responses delivers every response as it arrives, provisional and
	// final alike.
	Responses() <-chan *Response

	OnRetransmission(f FnTxResponse) bool
}

type FnTxTerminate func(key string, err error)
type FnTxCancel func(r *Request)
type FnTxResponse func(r *Response)

// baseTx holds the state shared by clientTx and serverTx: the FSM driver,
// the done channel, and the transport connection the transaction writes
// retransmissions on.
type baseTx struct {
	mu sync.Mutex

	key    string
	origin *Request
	conn   Connection

	done   chan struct{}
	closed bool

	fsmMu     sync.Mutex
	fsmState  fsmTransition
	fsmResp   *Response
	fsmErr    error
	fsmAck    *Request
	fsmCancel *Request

	log         zerolog.Logger
	onTerminate FnTxTerminate
}

func (tx *baseTx) String() string {
	if tx == nil {
		return "<nil>"
	}
	return tx.key
}

func (tx *baseTx) Key() string     { return tx.key }
func (tx *baseTx) Origin() *Request { return tx.origin }
func (tx *baseTx) Done() <-chan struct{} { return tx.done }

func (tx *baseTx) OnTerminate(f FnTxTerminate) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	select {
	case <-tx.done:
		return false
	default:
	}
	if tx.onTerminate != nil {
		prev := tx.onTerminate
		tx.onTerminate = func(key string, err error) {
			prev(key, err)
			f(key, err)
		}
		return true
	}
	tx.onTerminate = f
	return true
}

func (tx *baseTx) Err() error {
	tx.fsmMu.Lock()
	defer tx.fsmMu.Unlock()
	return tx.fsmErr
}

func (tx *baseTx) initFSM(start fsmTransition) {
	tx.fsmMu.Lock()
	tx.fsmState = start
	tx.fsmMu.Unlock()
}

// spinFsm drains fsmInput chains: each fsmState returns the next input to
// feed itself, FsmInputNone stops the spin.
func (tx *baseTx) spinFsmUnsafe(in fsmInput) {
	for i := in; i != FsmInputNone; {
		if TransactionFSMDebug {
			tx.log.Debug().Str("key", tx.key).Str("input", i.String()).Msg("sip: transaction fsm input")
		}
		i = tx.fsmState(i)
	}
}

func (tx *baseTx) spinFsm(in fsmInput) {
	tx.fsmMu.Lock()
	tx.spinFsmUnsafe(in)
	tx.fsmMu.Unlock()
}

func (tx *baseTx) spinFsmWithResponse(in fsmInput, resp *Response) {
	tx.fsmMu.Lock()
	tx.fsmResp = resp
	tx.spinFsmUnsafe(in)
	tx.fsmMu.Unlock()
}

func (tx *baseTx) spinFsmWithRequest(in fsmInput, req *Request) {
	tx.fsmMu.Lock()
	switch {
	case req.IsAck():
		tx.fsmAck = req
	case req.IsCancel():
		tx.fsmCancel = req
	}
	tx.spinFsmUnsafe(in)
	tx.fsmMu.Unlock()
}

func (tx *baseTx) spinFsmWithError(in fsmInput, err error) {
	tx.fsmMu.Lock()
	tx.fsmErr = err
	tx.spinFsmUnsafe(in)
	tx.fsmMu.Unlock()
}

func isRFC3261Branch(branch string) bool {
	return branch != "" &&
		strings.HasPrefix(branch, RFC3261BranchMagicCookie) &&
		strings.TrimPrefix(branch, RFC3261BranchMagicCookie) != ""
}

// ServerTxKeyMake builds the key a server transaction is matched on for an
// incoming request (RFC 3261 17.2.3).
func ServerTxKeyMake(msg Message) (string, error) {
	return makeServerTxKey(msg, "")
}

func makeServerTxKey(msg Message, asMethod RequestMethod) (string, error) {
	via := msg.Via()
	if via == nil {
		return "", fmt.Errorf("sip: no Via header in %s", MessageShortString(msg))
	}
	cseq := msg.CSeq()
	if cseq == nil {
		return "", fmt.Errorf("sip: no CSeq header in %s", MessageShortString(msg))
	}
	method := cseq.MethodName
	if method == ACK {
		method = INVITE
	}
	if asMethod != "" {
		method = asMethod
	}

	branch, _ := via.Params.Get("branch")
	var b strings.Builder
	if isRFC3261Branch(branch) {
		port := via.Port
		if port <= 0 {
			port = DefaultPort(via.Transport)
		}
		b.WriteString(branch)
		b.WriteString(TxSeperator)
		b.WriteString(via.Host)
		b.WriteString(TxSeperator)
		b.WriteString(strconv.Itoa(port))
		b.WriteString(TxSeperator)
		b.WriteString(string(method))
		return b.String(), nil
	}

	// RFC 2543 fallback, kept for interop with pre-3261 peers.
	from := msg.From()
	if from == nil {
		return "", fmt.Errorf("sip: no From header in %s", MessageShortString(msg))
	}
	fromTag, ok := from.Params.Get("tag")
	if !ok {
		return "", fmt.Errorf("sip: no From tag in %s", MessageShortString(msg))
	}
	callID := msg.CallID()
	if callID == nil {
		return "", fmt.Errorf("sip: no Call-ID header in %s", MessageShortString(msg))
	}
	b.WriteString(fromTag)
	b.WriteString(TxSeperator)
	callID.StringWrite(&b)
	b.WriteString(TxSeperator)
	b.WriteString(string(method))
	b.WriteString(TxSeperator)
	b.WriteString(strconv.Itoa(int(cseq.SeqNo)))
	b.WriteString(TxSeperator)
	via.StringWrite(&b)
	return b.String(), nil
}

// ClientTxKeyMake builds the key a client transaction is matched on for an
// incoming response (RFC 3261 17.1.3).
func ClientTxKeyMake(msg Message) (string, error) {
	return makeClientTxKey(msg, "")
}

func makeClientTxKey(msg Message, asMethod RequestMethod) (string, error) {
	cseq := msg.CSeq()
	if cseq == nil {
		return "", fmt.Errorf("sip: no CSeq header in %s", MessageShortString(msg))
	}
	method := cseq.MethodName
	if method == ACK {
		method = INVITE
	}
	if asMethod != "" {
		method = asMethod
	}

	via := msg.Via()
	if via == nil {
		return "", fmt.Errorf("sip: no Via header in %s", MessageShortString(msg))
	}
	branch, ok := via.Params.Get("branch")
	if !ok || !isRFC3261Branch(branch) {
		return "", fmt.Errorf("sip: no RFC 3261 branch in Via of %s", MessageShortString(msg))
	}

	var b strings.Builder
	b.Grow(len(branch) + len(method) + len(TxSeperator))
	b.WriteString(branch)
	b.WriteString(TxSeperator)
	b.WriteString(string(method))
	return b.String(), nil
}

// transactionStore is a concurrency-safe registry of in-flight
// transactions, keyed the way makeServerTxKey/makeClientTxKey produce.
type transactionStore[T Transaction] struct {
	mu    sync.RWMutex
	items map[string]T
}

func newTransactionStore[T Transaction]() *transactionStore[T] {
	return &transactionStore[T]{items: make(map[string]T)}
}

func (store *transactionStore[T]) put(key string, tx T) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.items[key] = tx
}

func (store *transactionStore[T]) get(key string) (T, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	tx, ok := store.items[key]
	return tx, ok
}

// putIfAbsent stores tx under key unless one is already present, returning
// the existing transaction and false in that case.
func (store *transactionStore[T]) putIfAbsent(key string, tx T) (T, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if existing, ok := store.items[key]; ok {
		return existing, false
	}
	store.items[key] = tx
	return tx, true
}

func (store *transactionStore[T]) drop(key string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()
	_, exists := store.items[key]
	delete(store.items, key)
	return exists
}

func (store *transactionStore[T]) terminateAll() {
	store.mu.RLock()
	txs := make([]T, 0, len(store.items))
	for _, tx := range store.items {
		txs = append(txs, tx)
	}
	store.mu.RUnlock()
	for _, tx := range txs {
		tx.Terminate()
	}
}
