package sip

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type TransactionRequestHandler func(req *Request, tx *ServerTx)
type UnhandledResponseHandler func(res *Response)

func defaultRequestHandler(log zerolog.Logger) TransactionRequestHandler {
	return func(req *Request, tx *ServerTx) {
		log.Info().Str("req", req.Short()).Msg("sip: unhandled request, no OnRequest handler registered")
	}
}

func defaultUnhandledResponseHandler(log zerolog.Logger) UnhandledResponseHandler {
	return func(res *Response) {
		log.Info().Str("res", res.Short()).Msg("sip: unhandled response, likely a retransmission")
	}
}

// TransactionLayer implements RFC 3261 17: it matches inbound
// requests/responses to existing transactions by key, creates new server
// transactions for unmatched requests, and owns transaction lifetime.
type TransactionLayer struct {
	transport *TransportLayer

	reqHandler    TransactionRequestHandler
	unRespHandler UnhandledResponseHandler

	clientTransactions *transactionStore[*ClientTx]
	serverTransactions *transactionStore[*ServerTx]

	log zerolog.Logger
}

type TransactionLayerOption func(txl *TransactionLayer)

func WithTransactionLayerLogger(logger zerolog.Logger) TransactionLayerOption {
	return func(txl *TransactionLayer) { txl.log = logger }
}

func WithTransactionLayerUnhandledResponseHandler(f UnhandledResponseHandler) TransactionLayerOption {
	return func(txl *TransactionLayer) { txl.unRespHandler = f }
}

func NewTransactionLayer(transport *TransportLayer, options ...TransactionLayerOption) *TransactionLayer {
	txl := &TransactionLayer{
		transport:          transport,
		clientTransactions: newTransactionStore[*ClientTx](),
		serverTransactions: newTransactionStore[*ServerTx](),
		log:                zerolog.Nop(),
	}
	txl.reqHandler = defaultRequestHandler(txl.log)
	txl.unRespHandler = defaultUnhandledResponseHandler(txl.log)

	for _, o := range options {
		o(txl)
	}

	transport.OnMessage(txl.handleMessage)
	return txl
}

func (txl *TransactionLayer) OnRequest(h TransactionRequestHandler) { txl.reqHandler = h }

func (txl *TransactionLayer) handleMessage(msg Message) {
	// Forking here (rather than handling inline) keeps a slow handler or a
	// blocked tx.Receive from stalling the transport's single read loop.
	switch msg := msg.(type) {
	case *Request:
		go txl.handleRequestBackground(msg)
	case *Response:
		go txl.handleResponseBackground(msg)
	default:
		txl.log.Error().Msg("sip: unsupported message type from transport")
	}
}

func (txl *TransactionLayer) handleRequestBackground(req *Request) {
	if err := txl.handleRequest(req); err != nil {
		txl.log.Error().Err(err).Str("req", req.StartLine()).Msg("sip: server tx failed to handle request")
	}
}

func (txl *TransactionLayer) handleRequest(req *Request) error {
	if req.IsCancel() {
		// RFC 3261 9.2: match the CANCEL to its INVITE transaction by
		// recomputing the key as if the method were INVITE.
		key, err := makeServerTxKey(req, INVITE)
		if err != nil {
			return fmt.Errorf("sip: make CANCEL key: %w", err)
		}
		if tx, exists := txl.getServerTx(key); exists {
			if err := tx.Receive(req); err != nil {
				return fmt.Errorf("sip: deliver CANCEL to tx: %w", err)
			}
			res := NewResponseFromRequest(req, StatusOK, "OK", nil)
			if err := tx.conn.WriteMsg(res); err != nil {
				return fmt.Errorf("sip: respond 200 to CANCEL: %w", err)
			}
			return nil
		}
		// No matching INVITE transaction: fall through and let the TU
		// decide what a standalone CANCEL means.
	}

	key, err := makeServerTxKey(req, "")
	if err != nil {
		return fmt.Errorf("sip: make server tx key: %w", err)
	}
	return txl.serverTxRequest(req, key)
}

func (txl *TransactionLayer) serverTxRequest(req *Request, key string) error {
	if tx, exists := txl.serverTransactions.get(key); exists {
		if err := tx.Receive(req); err != nil {
			return fmt.Errorf("sip: deliver retransmission to tx: %w", err)
		}
		return nil
	}

	tx, err := txl.serverTxCreate(req, key)
	if err != nil {
		return err
	}

	if existing, stored := txl.serverTransactions.putIfAbsent(key, tx); !stored {
		// Lost a race against another goroutine creating the same
		// transaction; hand the request to the one that won.
		tx.Terminate()
		return existing.Receive(req)
	}
	tx.OnTerminate(txl.serverTxTerminate)

	txl.reqHandler(req, tx)
	return nil
}

func (txl *TransactionLayer) serverTxCreate(req *Request, key string) (*ServerTx, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := txl.transport.ServerRequestConnection(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sip: server tx connection: %w", err)
	}

	tx := NewServerTx(key, req, conn, txl.log)
	if err := tx.Init(); err != nil {
		return nil, err
	}
	return tx, nil
}

func (txl *TransactionLayer) handleResponseBackground(res *Response) {
	if err := txl.handleResponse(res); err != nil {
		txl.log.Error().Err(err).Msg("sip: client tx failed to handle response")
	}
}

func (txl *TransactionLayer) handleResponse(res *Response) error {
	key, err := ClientTxKeyMake(res)
	if err != nil {
		return fmt.Errorf("sip: make client tx key: %w", err)
	}

	tx, exists := txl.getClientTx(key)
	if !exists {
		// RFC 3261 17.1.1.2: an unmatched response still goes to the TU.
		txl.unRespHandler(res)
		return nil
	}
	tx.Receive(res)
	return nil
}

// Request starts a new client transaction for req and sends it.
func (txl *TransactionLayer) Request(ctx context.Context, req *Request) (*ClientTx, error) {
	tx, err := txl.NewClientTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := tx.Init(); err != nil {
		tx.Terminate()
		return nil, err
	}
	return tx, nil
}

// NewClientTransaction allocates but does not yet send a client transaction.
func (txl *TransactionLayer) NewClientTransaction(ctx context.Context, req *Request) (*ClientTx, error) {
	if req.IsAck() {
		return nil, fmt.Errorf("sip: ACK must be sent directly through the transport, not as a transaction")
	}

	key, err := ClientTxKeyMake(req)
	if err != nil {
		return nil, err
	}
	return txl.clientTxRequest(ctx, req, key)
}

func (txl *TransactionLayer) clientTxRequest(ctx context.Context, req *Request, key string) (*ClientTx, error) {
	conn, err := txl.transport.ClientRequestConnection(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sip: client tx connection: %w", err)
	}

	tx := NewClientTx(key, req, conn, txl.log)
	if _, stored := txl.clientTransactions.putIfAbsent(key, tx); !stored {
		conn.TryClose()
		return nil, fmt.Errorf("sip: client transaction %q already exists", key)
	}
	tx.OnTerminate(txl.clientTxTerminate)
	return tx, nil
}

// Respond routes res to the server transaction matching its CSeq/Via.
func (txl *TransactionLayer) Respond(res *Response) (*ServerTx, error) {
	key, err := ServerTxKeyMake(res)
	if err != nil {
		return nil, err
	}
	tx, exists := txl.getServerTx(key)
	if !exists {
		return nil, fmt.Errorf("sip: no server transaction for response %s", res.Short())
	}
	if err := tx.Respond(res); err != nil {
		return nil, err
	}
	return tx, nil
}

func (txl *TransactionLayer) clientTxTerminate(key string, err error) {
	if !txl.clientTransactions.drop(key) {
		txl.log.Debug().Str("tx", key).Msg("sip: client tx already removed")
	}
}

func (txl *TransactionLayer) serverTxTerminate(key string, err error) {
	if !txl.serverTransactions.drop(key) {
		txl.log.Debug().Str("tx", key).Msg("sip: server tx already removed")
	}
}

// getClientTx matches an inbound response (RFC 3261 17.1.3).
func (txl *TransactionLayer) getClientTx(key string) (*ClientTx, bool) {
	return txl.clientTransactions.get(key)
}

// getServerTx matches an inbound request (RFC 3261 17.2.3).
func (txl *TransactionLayer) getServerTx(key string) (*ServerTx, bool) {
	return txl.serverTransactions.get(key)
}

func (txl *TransactionLayer) Close() {
	txl.clientTransactions.terminateAll()
	txl.serverTransactions.terminateAll()
	txl.log.Debug().Msg("sip: transaction layer closed")
}

func (txl *TransactionLayer) Transport() *TransportLayer { return txl.transport }
