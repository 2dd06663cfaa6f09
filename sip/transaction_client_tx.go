package sip

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ClientTx drives the client side of one request (RFC 3261 17.1): request
// retransmission, response correlation, and ACK generation for non-2xx
// INVITE finals.
type ClientTx struct {
	baseTx

	responses chan *Response

	timerA     *time.Timer
	timerATime time.Duration
	timerB     *time.Timer
	timerD     *time.Timer
	timerDTime time.Duration
	timerM     *time.Timer

	onRetransmission FnTxResponse
}

func NewClientTx(key string, origin *Request, conn Connection, logger zerolog.Logger) *ClientTx {
	tx := &ClientTx{}
	tx.key = key
	tx.conn = conn
	tx.responses = make(chan *Response)
	tx.done = make(chan struct{})
	tx.log = logger
	tx.origin = origin
	return tx
}

// Init starts retransmission/timeout timers and sends the initial request.
func (tx *ClientTx) Init() error {
	tx.initClientFSM()

	if err := tx.conn.WriteMsg(tx.origin); err != nil {
		return wrapTransportError(fmt.Errorf("writing request %q: %w", tx.origin.StartLine(), err))
	}

	reliable := IsReliable(tx.origin.Transport())
	tx.mu.Lock()
	if reliable {
		tx.timerDTime = 0
	} else {
		// RFC 3261 17.1.1.2: start Timer A only on unreliable transports.
		tx.timerATime = TimerA
		tx.timerA = time.AfterFunc(tx.timerATime, func() { tx.spinFsm(clientInputTimerA) })
		tx.timerDTime = TimerD
	}
	tx.timerB = time.AfterFunc(TimerB, func() {
		tx.spinFsmWithError(clientInputTimerB, fmt.Errorf("%w: Timer B fired", ErrTransactionTimeout))
	})
	tx.mu.Unlock()

	tx.log.Debug().Str("tx", tx.Key()).Msg("sip: client transaction initialized")
	return nil
}

func (tx *ClientTx) initClientFSM() {
	if tx.origin.IsInvite() {
		tx.baseTx.initFSM(tx.inviteStateCalling)
	} else {
		tx.baseTx.initFSM(tx.stateCalling)
	}
}

func (tx *ClientTx) Responses() <-chan *Response { return tx.responses }

func (tx *ClientTx) OnRetransmission(f FnTxResponse) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return false
	}
	if tx.onRetransmission != nil {
		prev := tx.onRetransmission
		tx.onRetransmission = func(r *Response) { prev(r); f(r) }
	} else {
		tx.onRetransmission = f
	}
	return true
}

func (tx *ClientTx) Terminate() {
	if tx.delete(ErrTransactionTerminated) {
		tx.fsmMu.Lock()
		tx.fsmErr = ErrTransactionCanceled
		tx.fsmMu.Unlock()
	}
}

// Receive processes one response and drives the FSM. Run it off the
// connection's read goroutine: it may block delivering to Responses().
func (tx *ClientTx) Receive(res *Response) {
	var input fsmInput
	switch {
	case res.IsProvisional():
		input = clientInput1xx
	case res.IsSuccess():
		input = clientInput2xx
	default:
		input = clientInput300Plus
	}
	tx.spinFsmWithResponse(input, res)
}

func (tx *ClientTx) Connection() Connection { return tx.conn }

func (tx *ClientTx) ack() {
	resp := tx.fsmResp
	if resp == nil {
		return
	}

	ack := newAckRequestNon2xx(tx.origin, resp, nil)
	tx.fsmAck = ack
	// RFC 3261 17.1.1.2: the ACK for a non-2xx goes to the same place the
	// request did, not wherever the response claims to be from.
	ack.raddr = tx.origin.raddr

	if err := tx.conn.WriteMsg(ack); err != nil {
		tx.log.Error().Err(err).
			Str("invite_request", tx.origin.Short()).
			Str("invite_response", resp.Short()).
			Msg("sip: sending ACK failed")
		go tx.spinFsmWithError(clientInputTransportErr, wrapTransportError(err))
	}
}

func (tx *ClientTx) resend() {
	select {
	case <-tx.done:
		return
	default:
	}
	if err := tx.conn.WriteMsg(tx.origin); err != nil {
		tx.log.Debug().Err(err).Str("req", tx.origin.StartLine()).Msg("sip: resend failed")
		go tx.spinFsmWithError(clientInputTransportErr, wrapTransportError(err))
	}
}

func (tx *ClientTx) delete(err error) bool {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return false
	}
	tx.closed = true
	close(tx.done)
	onterm := tx.onTerminate

	if tx.timerA != nil {
		tx.timerA.Stop()
		tx.timerA = nil
	}
	if tx.timerB != nil {
		tx.timerB.Stop()
		tx.timerB = nil
	}
	if tx.timerD != nil {
		tx.timerD.Stop()
		tx.timerD = nil
	}
	tx.mu.Unlock()

	if onterm != nil {
		onterm(tx.key, err)
	}
	if _, err := tx.conn.TryClose(); err != nil {
		tx.log.Info().Err(err).Str("tx", tx.Key()).Msg("sip: closing connection returned error")
	}
	tx.log.Debug().Str("tx", tx.Key()).Msg("sip: client transaction destroyed")
	return true
}

func (tx *ClientTx) stopTimerA() {
	tx.mu.Lock()
	if tx.timerA != nil {
		tx.timerA.Stop()
		tx.timerA = nil
	}
	tx.mu.Unlock()
}

func (tx *ClientTx) fsmPassUp() {
	resp := tx.fsmResp
	if resp == nil {
		return
	}
	select {
	case <-tx.done:
	case tx.responses <- resp:
	}
}

func (tx *ClientTx) passUpRetransmission() {
	resp := tx.fsmResp
	if resp == nil {
		return
	}
	tx.mu.Lock()
	onResp := tx.onRetransmission
	tx.mu.Unlock()
	if onResp != nil {
		tx.fsmMu.Unlock()
		onResp(resp)
		tx.fsmMu.Lock()
		return
	}
	tx.log.Debug().Str("tx", tx.Key()).Msg("sip: 2xx retransmission dropped, no listener")
}

// --- INVITE client FSM (RFC 3261 Figure 5) ---

func (tx *ClientTx) inviteStateCalling(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case clientInput1xx:
		tx.fsmState, act = tx.inviteStateProceeding, tx.actInviteProceeding
	case clientInput2xx:
		tx.fsmState, act = tx.inviteStateAccepted, tx.actPassupAccept
	case clientInput300Plus:
		tx.fsmState, act = tx.inviteStateCompleted, tx.actInviteFinal
	case clientInputTimerA:
		tx.fsmState, act = tx.inviteStateCalling, tx.actInviteResend
	case clientInputTimerB:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actTimeout
	case clientInputTransportErr:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ClientTx) inviteStateProceeding(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case clientInput1xx:
		tx.fsmState, act = tx.inviteStateProceeding, tx.actPassup
	case clientInput2xx:
		tx.fsmState, act = tx.inviteStateAccepted, tx.actPassupAccept
	case clientInput300Plus:
		tx.fsmState, act = tx.inviteStateCompleted, tx.actInviteFinal
	case clientInputTimerB:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actTimeout
	case clientInputTransportErr:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ClientTx) inviteStateCompleted(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case clientInput300Plus:
		tx.fsmState, act = tx.inviteStateCompleted, tx.actAckResend
	case clientInputTransportErr:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actTransErr
	case clientInputTimerD:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actDelete
	default:
		return FsmInputNone
	}
	return act()
}

// inviteStateAccepted is RFC 6026 7.2: absorb 2xx retransmissions and stray
// transport errors instead of tearing the transaction down immediately, so
// ACKs generated by the UAC dialog layer (not this transaction) still have
// a Via/branch to match against.
func (tx *ClientTx) inviteStateAccepted(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case clientInput2xx:
		tx.fsmState, act = tx.inviteStateAccepted, tx.actPassupRetransmission
	case clientInputTransportErr:
		tx.fsmState, act = tx.inviteStateAccepted, tx.actTransErrNoDelete
	case clientInputTimerM:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actDelete
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ClientTx) inviteStateTerminated(in fsmInput) fsmInput {
	if in == clientInputDelete {
		tx.fsmState = tx.inviteStateTerminated
		return tx.actDelete()
	}
	return FsmInputNone
}

// --- non-INVITE client FSM (RFC 3261 Figure 6) ---

func (tx *ClientTx) stateCalling(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case clientInput1xx:
		tx.fsmState, act = tx.stateProceeding, tx.actPassup
	case clientInput2xx, clientInput300Plus:
		tx.fsmState, act = tx.stateCompleted, tx.actFinal
	case clientInputTimerA:
		tx.fsmState, act = tx.stateCalling, tx.actResend
	case clientInputTimerB:
		tx.fsmState, act = tx.stateTerminated, tx.actTimeout
	case clientInputTransportErr:
		tx.fsmState, act = tx.stateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ClientTx) stateProceeding(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case clientInput1xx:
		tx.fsmState, act = tx.stateProceeding, tx.actPassup
	case clientInput2xx, clientInput300Plus:
		tx.fsmState, act = tx.stateCompleted, tx.actFinal
	case clientInputTimerA:
		tx.fsmState, act = tx.stateProceeding, tx.actResend
	case clientInputTimerB:
		tx.fsmState, act = tx.stateTerminated, tx.actTimeout
	case clientInputTransportErr:
		tx.fsmState, act = tx.stateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ClientTx) stateCompleted(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case clientInputDelete, clientInputTimerD:
		tx.fsmState, act = tx.stateTerminated, tx.actDelete
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ClientTx) stateTerminated(in fsmInput) fsmInput {
	if in == clientInputDelete {
		tx.fsmState = tx.stateTerminated
		return tx.actDelete()
	}
	return FsmInputNone
}

// --- actions ---

func (tx *ClientTx) actInviteResend() fsmInput {
	tx.mu.Lock()
	tx.timerATime *= 2
	tx.timerA.Reset(tx.timerATime)
	tx.mu.Unlock()
	tx.resend()
	return FsmInputNone
}

func (tx *ClientTx) actResend() fsmInput {
	tx.mu.Lock()
	tx.timerATime *= 2
	if tx.timerATime > T2 {
		tx.timerATime = T2
	}
	if tx.timerA != nil {
		tx.timerA.Reset(tx.timerATime)
	}
	tx.mu.Unlock()
	tx.resend()
	return FsmInputNone
}

func (tx *ClientTx) actInviteProceeding() fsmInput {
	tx.fsmPassUp()
	tx.mu.Lock()
	if tx.timerA != nil {
		tx.timerA.Stop()
		tx.timerA = nil
	}
	if tx.timerB != nil {
		tx.timerB.Stop()
		tx.timerB = nil
	}
	tx.mu.Unlock()
	return FsmInputNone
}

func (tx *ClientTx) actInviteFinal() fsmInput {
	tx.ack()
	tx.fsmPassUp()
	tx.mu.Lock()
	if tx.timerA != nil {
		tx.timerA.Stop()
		tx.timerA = nil
	}
	if tx.timerB != nil {
		tx.timerB.Stop()
		tx.timerB = nil
	}
	tx.timerD = time.AfterFunc(tx.timerDTime, func() { tx.spinFsm(clientInputTimerD) })
	tx.mu.Unlock()
	return FsmInputNone
}

func (tx *ClientTx) actFinal() fsmInput {
	tx.fsmPassUp()
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.timerA != nil {
		tx.timerA.Stop()
		tx.timerA = nil
	}
	if tx.timerB != nil {
		tx.timerB.Stop()
		tx.timerB = nil
	}
	if tx.timerDTime > 0 {
		tx.timerD = time.AfterFunc(tx.timerDTime, func() { tx.spinFsm(clientInputTimerD) })
		return FsmInputNone
	}
	return clientInputDelete
}

func (tx *ClientTx) actAckResend() fsmInput {
	if tx.fsmAck != nil {
		// A non-2xx retransmission after we already ACKed means our ACK
		// was lost; resending immediately risks a tight loop with a peer
		// that keeps resending too, so back off one T2 first.
		tx.log.Warn().Str("tx", tx.Key()).Msg("sip: non-2xx retransmission after ACK, backing off")
		select {
		case <-tx.done:
			return FsmInputNone
		case <-time.After(T2):
		}
	}
	tx.ack()
	return FsmInputNone
}

func (tx *ClientTx) actTransErr() fsmInput {
	tx.stopTimerA()
	return clientInputDelete
}

func (tx *ClientTx) actTransErrNoDelete() fsmInput {
	tx.actTransErr()
	return FsmInputNone
}

func (tx *ClientTx) actTimeout() fsmInput {
	tx.stopTimerA()
	return clientInputDelete
}

func (tx *ClientTx) actPassup() fsmInput {
	tx.fsmPassUp()
	tx.stopTimerA()
	return FsmInputNone
}

func (tx *ClientTx) actPassupRetransmission() fsmInput {
	tx.passUpRetransmission()
	return FsmInputNone
}

func (tx *ClientTx) actPassupAccept() fsmInput {
	tx.fsmPassUp()
	tx.mu.Lock()
	if tx.timerA != nil {
		tx.timerA.Stop()
		tx.timerA = nil
	}
	if tx.timerB != nil {
		tx.timerB.Stop()
		tx.timerB = nil
	}
	tx.timerM = time.AfterFunc(TimerM, func() { tx.spinFsm(clientInputTimerM) })
	tx.mu.Unlock()
	return FsmInputNone
}

func (tx *ClientTx) actDelete() fsmInput {
	if tx.fsmErr == nil {
		tx.fsmErr = ErrTransactionTerminated
	}
	tx.delete(tx.fsmErr)
	return FsmInputNone
}
