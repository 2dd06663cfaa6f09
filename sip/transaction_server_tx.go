package sip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServerTx drives the server side of one received request (RFC 3261 17.2):
// response retransmission, ACK absorption for non-2xx INVITE finals, and
// the RFC 6026 "Accepted" pseudostate for 2xx INVITE finals.
type ServerTx struct {
	baseTx

	acks     chan *Request
	onCancel FnTxCancel

	timerG      *time.Timer
	timerGTime  time.Duration
	timerH      *time.Timer
	timerI      *time.Timer
	timerITime  time.Duration
	timerJ      *time.Timer
	timerJTime  time.Duration
	timer1xx    *time.Timer
	timerL      *time.Timer
	reliable    bool

	closeOnce sync.Once
}

func NewServerTx(key string, origin *Request, conn Connection, logger zerolog.Logger) *ServerTx {
	tx := &ServerTx{}
	tx.key = key
	tx.conn = conn
	tx.acks = make(chan *Request)
	tx.done = make(chan struct{})
	tx.log = logger
	tx.origin = origin
	tx.reliable = IsReliable(origin.Transport())
	return tx
}

func (tx *ServerTx) Init() error {
	tx.initServerFSM()

	tx.mu.Lock()
	if !tx.reliable {
		tx.timerGTime = TimerG
		tx.timerITime = TimerI
		tx.timerJTime = TimerJ
	}
	tx.mu.Unlock()

	// RFC 3261 17.2.1: send a provisional "100 Trying" if the TU hasn't
	// responded within 200ms, so the client doesn't start retransmitting.
	if tx.Origin().IsInvite() {
		tx.mu.Lock()
		tx.timer1xx = time.AfterFunc(Timer1xx, func() {
			trying := NewResponseFromRequest(tx.Origin(), StatusTrying, "Trying", nil)
			if err := tx.Respond(trying); err != nil {
				tx.log.Error().Err(err).Msg("sip: sending '100 Trying' failed")
			}
		})
		tx.mu.Unlock()
	}
	tx.log.Debug().Str("tx", tx.Key()).Msg("sip: server transaction initialized")
	return nil
}

func (tx *ServerTx) initServerFSM() {
	if tx.Origin().IsInvite() {
		tx.baseTx.initFSM(tx.inviteStateProceeding)
	} else {
		tx.baseTx.initFSM(tx.stateTrying)
	}
}

// Receive processes a retransmitted request, the ACK, or a CANCEL matching
// this transaction.
func (tx *ServerTx) Receive(req *Request) error {
	tx.mu.Lock()
	if tx.timer1xx != nil {
		tx.timer1xx.Stop()
		tx.timer1xx = nil
	}
	tx.mu.Unlock()

	var input fsmInput
	switch {
	case req.Method == tx.origin.Method:
		input = serverInputRequest
	case req.IsAck():
		input = serverInputAck
	case req.IsCancel():
		input = serverInputCancel
	default:
		return fmt.Errorf("sip: unexpected request method %s for tx %s", req.Method, tx.Key())
	}
	tx.spinFsmWithRequest(input, req)
	return nil
}

// Respond hands res to the FSM. A CANCEL response bypasses the FSM
// entirely, since the 200 for CANCEL is not part of the INVITE
// transaction's own state.
func (tx *ServerTx) Respond(res *Response) error {
	if res.IsCancel() {
		return tx.conn.WriteMsg(res)
	}

	tx.mu.Lock()
	if tx.timer1xx != nil {
		tx.timer1xx.Stop()
		tx.timer1xx = nil
	}
	tx.mu.Unlock()

	var input fsmInput
	switch {
	case res.IsProvisional():
		input = serverInputUser1xx
	case res.IsSuccess():
		input = serverInputUser2xx
	default:
		input = serverInputUser300Plus
	}
	tx.spinFsmWithResponse(input, res)
	return tx.Err()
}

func (tx *ServerTx) Acks() <-chan *Request { return tx.acks }

// Context adapts the transaction's lifetime to context.Context for handler
// code that wants ctx.Done() instead of tx.Done().
func (tx *ServerTx) Context() context.Context              { return tx }
func (tx *ServerTx) Deadline() (time.Time, bool)            { return time.Time{}, false }
func (tx *ServerTx) Value(key any) any                      { return nil }

func (tx *ServerTx) ackSend(r *Request) {
	select {
	case <-tx.done:
		tx.log.Warn().Str("tx", tx.Key()).Msg("sip: ACK delivery missed, transaction gone")
	case tx.acks <- r:
	}
}

func (tx *ServerTx) ackSendAsync(r *Request) {
	select {
	case tx.acks <- r:
		return
	default:
	}
	go tx.ackSend(r)
}

func (tx *ServerTx) OnCancel(f FnTxCancel) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	select {
	case <-tx.done:
		return false
	default:
	}
	tx.onCancel = f
	return true
}

func (tx *ServerTx) Terminate() {
	tx.log.Debug().Str("tx", tx.Key()).Msg("sip: server transaction terminating")
	tx.delete()
}

// TerminateGracefully waits for an already-sent final response to finish
// its retransmission window instead of cutting it off mid-flight.
func (tx *ServerTx) TerminateGracefully() {
	if tx.reliable {
		tx.Terminate()
		return
	}
	tx.fsmMu.Lock()
	finalized := tx.fsmResp != nil && !tx.fsmResp.IsProvisional()
	tx.fsmMu.Unlock()
	if !finalized {
		tx.Terminate()
		return
	}
	<-tx.Done()
}

func (tx *ServerTx) delete() {
	tx.closeOnce.Do(func() {
		tx.mu.Lock()
		close(tx.done)
		onterm := tx.onTerminate
		tx.mu.Unlock()
		if onterm != nil {
			onterm(tx.key, tx.Err())
		}
	})

	tx.mu.Lock()
	if tx.timerI != nil {
		tx.timerI.Stop()
		tx.timerI = nil
	}
	if tx.timerG != nil {
		tx.timerG.Stop()
		tx.timerG = nil
	}
	if tx.timerH != nil {
		tx.timerH.Stop()
		tx.timerH = nil
	}
	if tx.timerJ != nil {
		tx.timerJ.Stop()
		tx.timerJ = nil
	}
	if tx.timer1xx != nil {
		tx.timer1xx.Stop()
		tx.timer1xx = nil
	}
	if tx.timerL != nil {
		tx.timerL.Stop()
		tx.timerL = nil
	}
	tx.mu.Unlock()
	tx.log.Debug().Str("tx", tx.Key()).Msg("sip: server transaction destroyed")
}

// --- INVITE server FSM (RFC 3261 Figure 7, extended by RFC 6026 7.1) ---

func (tx *ServerTx) inviteStateProceeding(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case serverInputRequest, serverInputUser1xx:
		tx.fsmState, act = tx.inviteStateProceeding, tx.actRespond
	case serverInputCancel:
		tx.fsmState, act = tx.inviteStateProceeding, tx.actCancel
	case serverInputUser2xx:
		tx.fsmState, act = tx.inviteStateAccepted, tx.actRespondAccept
	case serverInputUser300Plus:
		tx.fsmState, act = tx.inviteStateCompleted, tx.actRespondComplete
	case serverInputTransportErr:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ServerTx) inviteStateCompleted(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case serverInputRequest:
		tx.fsmState, act = tx.inviteStateCompleted, tx.actRespond
	case serverInputAck:
		tx.fsmState, act = tx.inviteStateConfirmed, tx.actConfirm
	case serverInputTimerG:
		tx.fsmState, act = tx.inviteStateCompleted, tx.actRespondComplete
	case serverInputTimerH:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actDelete
	case serverInputTransportErr:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ServerTx) inviteStateConfirmed(in fsmInput) fsmInput {
	if in == serverInputTimerI {
		tx.fsmState = tx.inviteStateTerminated
		return tx.actDelete()
	}
	return FsmInputNone
}

func (tx *ServerTx) inviteStateAccepted(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case serverInputAck:
		tx.fsmState, act = tx.inviteStateAccepted, tx.actPassupAck
	case serverInputUser2xx:
		// RFC 6026 7.1: 2xx retransmissions from the TU in this state go
		// straight to the transport; the FSM no longer generates them.
		tx.fsmState, act = tx.inviteStateAccepted, tx.actRespond
	case serverInputTimerL:
		tx.fsmState, act = tx.inviteStateTerminated, tx.actDelete
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ServerTx) inviteStateTerminated(in fsmInput) fsmInput {
	if in == serverInputDelete {
		tx.fsmState = tx.inviteStateTerminated
		return tx.actDelete()
	}
	return FsmInputNone
}

// --- non-INVITE server FSM (RFC 3261 Figure 8) ---

func (tx *ServerTx) stateTrying(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case serverInputUser1xx:
		tx.fsmState, act = tx.stateProceeding, tx.actRespond
	case serverInputUser2xx, serverInputUser300Plus:
		tx.fsmState, act = tx.stateCompleted, tx.actFinal
	case serverInputTransportErr:
		tx.fsmState, act = tx.stateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ServerTx) stateProceeding(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case serverInputRequest, serverInputUser1xx:
		tx.fsmState, act = tx.stateProceeding, tx.actRespond
	case serverInputUser2xx, serverInputUser300Plus:
		tx.fsmState, act = tx.stateCompleted, tx.actFinal
	case serverInputTransportErr:
		tx.fsmState, act = tx.stateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ServerTx) stateCompleted(in fsmInput) fsmInput {
	var act fsmState
	switch in {
	case serverInputRequest:
		tx.fsmState, act = tx.stateCompleted, tx.actRespond
	case serverInputTimerJ:
		tx.fsmState, act = tx.stateTerminated, tx.actDelete
	case serverInputTransportErr:
		tx.fsmState, act = tx.stateTerminated, tx.actTransErr
	default:
		return FsmInputNone
	}
	return act()
}

func (tx *ServerTx) stateTerminated(in fsmInput) fsmInput {
	if in == serverInputDelete {
		tx.fsmState = tx.stateTerminated
		return tx.actDelete()
	}
	return FsmInputNone
}

// --- actions ---

func (tx *ServerTx) actRespond() fsmInput {
	if err := tx.passResp(); err != nil {
		return serverInputTransportErr
	}
	return FsmInputNone
}

func (tx *ServerTx) actRespondComplete() fsmInput {
	if err := tx.passResp(); err != nil {
		return serverInputTransportErr
	}
	if !tx.reliable {
		tx.mu.Lock()
		if tx.timerG == nil {
			tx.timerG = time.AfterFunc(tx.timerGTime, func() { tx.spinFsm(serverInputTimerG) })
		} else {
			tx.timerGTime *= 2
			if tx.timerGTime > T2 {
				tx.timerGTime = T2
			}
			tx.timerG.Reset(tx.timerGTime)
		}
		tx.mu.Unlock()
	}
	tx.mu.Lock()
	if tx.timerH == nil {
		tx.timerH = time.AfterFunc(TimerH, func() { tx.spinFsm(serverInputTimerH) })
	}
	tx.mu.Unlock()
	return FsmInputNone
}

func (tx *ServerTx) actRespondAccept() fsmInput {
	if err := tx.passResp(); err != nil {
		return serverInputTransportErr
	}
	tx.mu.Lock()
	tx.timerL = time.AfterFunc(TimerL, func() { tx.spinFsm(serverInputTimerL) })
	tx.mu.Unlock()
	return FsmInputNone
}

func (tx *ServerTx) actPassupAck() fsmInput {
	if r := tx.fsmAck; r != nil {
		tx.ackSendAsync(r)
	}
	return FsmInputNone
}

func (tx *ServerTx) actFinal() fsmInput {
	if err := tx.passResp(); err != nil {
		return serverInputTransportErr
	}
	tx.mu.Lock()
	tx.timerJ = time.AfterFunc(tx.timerJTime, func() { tx.spinFsm(serverInputTimerJ) })
	tx.mu.Unlock()
	return FsmInputNone
}

func (tx *ServerTx) actTransErr() fsmInput {
	tx.log.Debug().Err(tx.fsmErr).Str("tx", tx.Key()).Msg("sip: transport error, terminating")
	return serverInputDelete
}

func (tx *ServerTx) actDelete() fsmInput {
	if tx.fsmErr == nil {
		tx.fsmErr = ErrTransactionTerminated
	}
	tx.delete()
	return FsmInputNone
}

func (tx *ServerTx) actConfirm() fsmInput {
	tx.mu.Lock()
	if tx.timerG != nil {
		tx.timerG.Stop()
		tx.timerG = nil
	}
	if tx.timerH != nil {
		tx.timerH.Stop()
		tx.timerH = nil
	}
	tx.timerI = time.AfterFunc(tx.timerITime, func() { tx.spinFsm(serverInputTimerI) })
	tx.mu.Unlock()

	if r := tx.fsmAck; r != nil {
		tx.ackSendAsync(r)
	}
	return FsmInputNone
}

func (tx *ServerTx) actCancel() fsmInput {
	r := tx.fsmCancel
	if r == nil {
		return FsmInputNone
	}
	tx.log.Debug().Str("tx", tx.Key()).Msg("sip: CANCEL received, responding 487")
	tx.fsmResp = NewResponseFromRequest(tx.origin, StatusRequestTerminated, "Request Terminated", nil)
	tx.fsmErr = ErrTransactionCanceled

	tx.mu.Lock()
	onCancel := tx.onCancel
	tx.mu.Unlock()
	if onCancel != nil {
		onCancel(r)
	}
	return serverInputUser300Plus
}

func (tx *ServerTx) passResp() error {
	resp := tx.fsmResp
	if resp == nil {
		return nil
	}
	if err := tx.conn.WriteMsg(resp); err != nil {
		tx.log.Debug().Err(err).Str("res", resp.StartLine()).Str("tx", tx.Key()).Msg("sip: sending response failed")
		tx.fsmErr = wrapTransportError(err)
		return err
	}
	return nil
}
