// Package call implements the call lifecycle state machine. A single event
// loop owns the call session; signaling envelopes, local intents and
// completions of blocking negotiation steps all funnel through one queue,
// so no two of them ever mutate the session concurrently.
package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"wavechat/native/internal/domain"
	"wavechat/native/internal/media"
)

// ErrClosed is returned for intents issued after the manager shut down.
var ErrClosed = errors.New("call manager closed")

const eventQueueSize = 64

// Manager is the call orchestrator. It drives the negotiator and the
// channel binding in response to local intents and remote signaling events.
type Manager struct {
	selfID        string
	binding       domain.Binding
	registry      *media.Registry
	newNegotiator domain.NegotiatorFactory
	autoAnswer    bool

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	// s is touched only by the run loop.
	s session

	stateMu  sync.RWMutex
	state    domain.CallState
	onState  []func(domain.CallState)
	onError  []func(error)
}

// NewManager wires the state machine to its collaborators and starts the
// event loop. The binding's inbound channel must be opened separately, at
// the login boundary.
func NewManager(selfID string, binding domain.Binding, registry *media.Registry, factory domain.NegotiatorFactory, autoAnswer bool) *Manager {
	m := &Manager{
		selfID:        selfID,
		binding:       binding,
		registry:      registry,
		newNegotiator: factory,
		autoAnswer:    autoAnswer,
		events:        make(chan event, eventQueueSize),
		done:          make(chan struct{}),
	}
	m.s.phase = domain.PhaseIdle
	m.state = domain.CallState{Phase: domain.PhaseIdle}

	binding.OnEnvelope(func(env domain.Envelope) {
		m.enqueue(evEnvelope{env: env})
	})

	go m.run()
	return m
}

// StartCall begins an outgoing call. Valid only while idle; anything else
// is rejected with ErrBusy and no second media session is created.
func (m *Manager) StartCall(targetID string, kind domain.CallKind) error {
	if targetID == "" || targetID == m.selfID {
		return fmt.Errorf("invalid call target %q", targetID)
	}
	reply := make(chan error, 1)
	if !m.submit(evStart{target: targetID, kind: kind, reply: reply}) {
		return ErrClosed
	}
	return <-reply
}

// AcceptIncoming answers the pending inbound call. Valid only while an
// incoming call is ringing.
func (m *Manager) AcceptIncoming() error {
	reply := make(chan error, 1)
	if !m.submit(evAccept{reply: reply}) {
		return ErrClosed
	}
	return <-reply
}

// EndCall hangs up the current call. It is the universal cancellation
// signal: safe in any phase, and a silent no-op while idle.
func (m *Manager) EndCall() error {
	reply := make(chan error, 1)
	if !m.submit(evEnd{reply: reply}) {
		return ErrClosed
	}
	return <-reply
}

// Snapshot returns the current call state for the UI layer.
func (m *Manager) Snapshot() domain.CallState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// OnStateChange registers a listener invoked on every phase transition.
// Listeners run on the event loop and must not call back into the manager
// synchronously.
func (m *Manager) OnStateChange(fn func(domain.CallState)) {
	m.stateMu.Lock()
	m.onState = append(m.onState, fn)
	m.stateMu.Unlock()
}

// OnError registers a listener for asynchronous call failures (media
// acquisition, protocol violations, transport errors that aborted a call).
func (m *Manager) OnError(fn func(error)) {
	m.stateMu.Lock()
	m.onError = append(m.onError, fn)
	m.stateMu.Unlock()
}

// Close tears down any active call and stops the event loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		reply := make(chan error, 1)
		m.events <- evEnd{reply: reply}
		<-reply
		close(m.done)
	})
}

func (m *Manager) run() {
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev event) {
	switch ev := ev.(type) {
	case evStart:
		ev.reply <- m.handleStart(ev)
	case evAccept:
		ev.reply <- m.handleAccept()
	case evEnd:
		m.handleEnd()
		ev.reply <- nil
	case evEnvelope:
		m.handleEnvelope(ev.env)
	case evOfferReady:
		m.handleOfferReady(ev)
	case evAnswerReady:
		m.handleAnswerReady(ev)
	case evAnswerApplied:
		m.handleAnswerApplied(ev)
	case evLocalCandidate:
		m.handleLocalCandidate(ev)
	case evRemoteTrack:
		m.handleRemoteTrack(ev)
	}
}

func (m *Manager) handleStart(ev evStart) error {
	if m.s.phase != domain.PhaseIdle {
		return domain.ErrBusy
	}

	m.s.generation++
	gen := m.s.generation
	m.s.kind = ev.kind
	m.s.counterpart = ev.target
	m.s.phase = domain.PhaseOutgoing
	m.s.pending = nil

	neg, err := m.newNegotiator(m.callbacks(gen))
	if err != nil {
		m.s.reset()
		return fmt.Errorf("create media session: %w", err)
	}
	m.s.negotiator = neg

	if err := m.binding.OpenOutbound(ev.target); err != nil {
		neg.Teardown()
		m.s.reset()
		return err
	}

	m.notifyState()
	log.Info().Str("component", "call").Str("to", ev.target).Str("kind", string(ev.kind)).Msg("starting call")

	// Media acquisition and offer creation can block on permission prompts
	// or device init; the loop stays responsive to hang-up meanwhile.
	go func() {
		sdp, err := neg.CreateOffer(ev.kind)
		m.enqueue(evOfferReady{gen: gen, sdp: sdp, err: err})
	}()
	return nil
}

func (m *Manager) handleAccept() error {
	if m.s.phase != domain.PhaseIncoming {
		return fmt.Errorf("no incoming call to accept")
	}
	if m.s.negotiator != nil {
		return fmt.Errorf("incoming call already being answered")
	}
	return m.startAnswer()
}

// startAnswer spawns the callee-side negotiation for the buffered offer.
func (m *Manager) startAnswer() error {
	gen := m.s.generation

	neg, err := m.newNegotiator(m.callbacks(gen))
	if err != nil {
		m.abort(fmt.Errorf("create media session: %w", err), true)
		return err
	}
	m.s.negotiator = neg

	kind := m.s.kind
	offer := m.s.remoteOffer
	go func() {
		sdp, err := neg.CreateAnswer(kind, offer)
		m.enqueue(evAnswerReady{gen: gen, sdp: sdp, err: err})
	}()
	return nil
}

func (m *Manager) handleEnd() {
	if m.s.phase == domain.PhaseIdle {
		return
	}
	log.Info().Str("component", "call").Str("with", m.s.counterpart).Msg("ending call")
	if m.s.counterpart != "" {
		m.sendBestEffort(domain.Envelope{
			Type: domain.SignalHangup,
			From: m.selfID,
			To:   m.s.counterpart,
		})
	}
	m.teardown()
}

func (m *Manager) handleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.SignalOffer:
		m.handleOffer(env)
	case domain.SignalAnswer:
		m.handleAnswer(env)
	case domain.SignalCandidate:
		m.handleCandidate(env)
	case domain.SignalHangup:
		m.handleHangup(env)
	default:
		log.Warn().Str("component", "call").Str("type", string(env.Type)).Msg("unknown envelope type")
	}
}

func (m *Manager) handleOffer(env domain.Envelope) {
	var offer domain.SDPPayload
	if err := json.Unmarshal(env.Payload, &offer); err != nil {
		log.Warn().Str("component", "call").Err(err).Msg("dropping malformed offer")
		return
	}
	kind := env.CallKind
	if kind == "" {
		kind = domain.KindVoice
	}

	switch m.s.phase {
	case domain.PhaseIdle:
		m.s.generation++
		m.s.kind = kind
		m.s.counterpart = env.From
		m.s.phase = domain.PhaseIncoming
		m.s.remoteOffer = offer
		m.s.pending = nil
		m.notifyState()
		log.Info().Str("component", "call").Str("from", env.From).Str("kind", string(kind)).Msg("incoming call")

		if m.autoAnswer {
			_ = m.startAnswer()
		}

	case domain.PhaseOutgoing:
		if env.From != m.s.counterpart {
			m.replyBusy(env.From)
			return
		}
		// Glare: both sides offered simultaneously. The lower identifier
		// keeps its offer; the higher one abandons its attempt and answers.
		if m.selfID < env.From {
			log.Info().Str("component", "call").Str("peer", env.From).Msg("glare: keeping local offer")
			return
		}
		log.Info().Str("component", "call").Str("peer", env.From).Msg("glare: yielding to remote offer")
		if m.s.negotiator != nil {
			m.s.negotiator.Teardown()
		}
		m.registry.Release()

		m.s.generation++
		m.s.negotiator = nil
		m.s.kind = kind
		m.s.phase = domain.PhaseIncoming
		m.s.remoteOffer = offer
		m.s.pending = nil
		m.s.applying = false
		m.notifyState()
		// Both users already asked for this call; answer without ringing.
		_ = m.startAnswer()

	default:
		if env.From == m.s.counterpart {
			log.Debug().Str("component", "call").Msg("dropping duplicate offer")
			return
		}
		m.replyBusy(env.From)
	}
}

func (m *Manager) handleAnswer(env domain.Envelope) {
	if m.s.phase != domain.PhaseOutgoing || env.From != m.s.counterpart || m.s.applying {
		log.Debug().Str("component", "call").Str("from", env.From).Msg("ignoring stale answer")
		return
	}
	var answer domain.SDPPayload
	if err := json.Unmarshal(env.Payload, &answer); err != nil {
		log.Warn().Str("component", "call").Err(err).Msg("dropping malformed answer")
		return
	}

	m.s.applying = true
	gen := m.s.generation
	neg := m.s.negotiator
	go func() {
		err := neg.ApplyRemoteAnswer(answer)
		m.enqueue(evAnswerApplied{gen: gen, err: err})
	}()
}

func (m *Manager) handleCandidate(env domain.Envelope) {
	switch m.s.phase {
	case domain.PhaseOutgoing, domain.PhaseIncoming, domain.PhaseActive:
	default:
		return
	}
	if env.From != m.s.counterpart {
		return
	}

	var candidate domain.ICECandidatePayload
	if err := json.Unmarshal(env.Payload, &candidate); err != nil {
		log.Warn().Str("component", "call").Err(err).Msg("dropping malformed candidate")
		return
	}

	// The remote description is applied off-loop; until its completion event
	// lands here, applying a fresh candidate could jump ahead of earlier
	// buffered ones. Queue unless the session is active with an empty buffer.
	if m.s.negotiator == nil || m.s.phase != domain.PhaseActive || len(m.s.pending) > 0 {
		m.s.pending = append(m.s.pending, candidate)
		return
	}
	switch err := m.s.negotiator.AddRemoteCandidate(candidate); {
	case err == nil:
	case errors.Is(err, domain.ErrNoRemoteDescription):
		m.s.pending = append(m.s.pending, candidate)
	default:
		log.Warn().Str("component", "call").Err(err).Msg("applying remote candidate")
	}
}

func (m *Manager) handleHangup(env domain.Envelope) {
	if m.s.phase == domain.PhaseIdle || env.From != m.s.counterpart {
		return
	}
	log.Info().Str("component", "call").Str("from", env.From).Msg("remote hangup")
	m.teardown()
}

func (m *Manager) handleOfferReady(ev evOfferReady) {
	if ev.gen != m.s.generation || m.s.phase != domain.PhaseOutgoing {
		log.Debug().Str("component", "call").Msg("discarding stale offer result")
		return
	}
	if ev.err != nil {
		m.abort(ev.err, false)
		return
	}

	if stream := m.s.negotiator.LocalStream(); stream != nil {
		m.registry.SetLocal(stream)
	}

	payload, _ := json.Marshal(ev.sdp)
	env := domain.Envelope{
		Type:     domain.SignalOffer,
		From:     m.selfID,
		To:       m.s.counterpart,
		Payload:  payload,
		CallKind: m.s.kind,
	}
	if err := m.sendWithRetry(env); err != nil {
		m.abort(err, false)
	}
}

func (m *Manager) handleAnswerReady(ev evAnswerReady) {
	if ev.gen != m.s.generation || m.s.phase != domain.PhaseIncoming {
		log.Debug().Str("component", "call").Msg("discarding stale answer result")
		return
	}
	if ev.err != nil {
		m.abort(ev.err, true)
		return
	}

	if stream := m.s.negotiator.LocalStream(); stream != nil {
		m.registry.SetLocal(stream)
	}

	payload, _ := json.Marshal(ev.sdp)
	env := domain.Envelope{
		Type:    domain.SignalAnswer,
		From:    m.selfID,
		To:      m.s.counterpart,
		Payload: payload,
	}
	if err := m.sendWithRetry(env); err != nil {
		m.abort(err, true)
		return
	}

	m.s.phase = domain.PhaseActive
	m.flushPending()
	m.notifyState()
	log.Info().Str("component", "call").Str("with", m.s.counterpart).Msg("call active")
}

func (m *Manager) handleAnswerApplied(ev evAnswerApplied) {
	if ev.gen != m.s.generation || m.s.phase != domain.PhaseOutgoing {
		log.Debug().Str("component", "call").Msg("discarding stale apply result")
		return
	}
	m.s.applying = false
	if ev.err != nil {
		m.abort(ev.err, true)
		return
	}

	m.s.phase = domain.PhaseActive
	m.flushPending()
	m.notifyState()
	log.Info().Str("component", "call").Str("with", m.s.counterpart).Msg("call active")
}

func (m *Manager) handleLocalCandidate(ev evLocalCandidate) {
	if ev.gen != m.s.generation || m.s.counterpart == "" {
		return
	}
	payload, _ := json.Marshal(ev.candidate)
	m.sendBestEffort(domain.Envelope{
		Type:    domain.SignalCandidate,
		From:    m.selfID,
		To:      m.s.counterpart,
		Payload: payload,
	})
}

func (m *Manager) handleRemoteTrack(ev evRemoteTrack) {
	if ev.gen != m.s.generation {
		_ = ev.track.Stop()
		return
	}
	m.registry.AddRemoteTrack(ev.track)
}

// callbacks builds the negotiator callbacks for one generation. Both paths
// re-enter the event queue so they never touch the session directly.
func (m *Manager) callbacks(gen uint64) domain.NegotiatorCallbacks {
	return domain.NegotiatorCallbacks{
		OnLocalCandidate: func(c domain.ICECandidatePayload) {
			m.enqueue(evLocalCandidate{gen: gen, candidate: c})
		},
		OnRemoteTrack: func(t domain.MediaTrack) {
			m.enqueue(evRemoteTrack{gen: gen, track: t})
		},
	}
}

// flushPending applies buffered remote candidates in arrival order. Valid
// only once the remote description is set.
func (m *Manager) flushPending() {
	pending := m.s.pending
	m.s.pending = nil
	for _, candidate := range pending {
		if err := m.s.negotiator.AddRemoteCandidate(candidate); err != nil {
			log.Warn().Str("component", "call").Err(err).Msg("flushing buffered candidate")
		}
	}
}

// sendWithRetry publishes an envelope, retrying once on transport failure
// before giving up.
func (m *Manager) sendWithRetry(env domain.Envelope) error {
	err := m.binding.Send(env)
	if err == nil {
		return nil
	}
	log.Warn().Str("component", "call").Err(err).Str("type", string(env.Type)).Msg("publish failed, retrying once")
	if err := m.binding.Send(env); err != nil {
		return err
	}
	return nil
}

func (m *Manager) sendBestEffort(env domain.Envelope) {
	if err := m.binding.Send(env); err != nil {
		log.Warn().Str("component", "call").Err(err).Str("type", string(env.Type)).Msg("best-effort publish failed")
	}
}

// replyBusy rejects an inbound offer that conflicts with the current
// session. The active call is unaffected.
func (m *Manager) replyBusy(to string) {
	log.Info().Str("component", "call").Str("from", to).Msg("rejecting offer: busy")
	m.sendBestEffort(domain.Envelope{
		Type: domain.SignalHangup,
		From: m.selfID,
		To:   to,
	})
}

// abort ends a failed call attempt: the error is surfaced, the peer is
// optionally notified, and the session is reset so no device stays open and
// no "calling" state lingers.
func (m *Manager) abort(err error, notifyPeer bool) {
	log.Error().Str("component", "call").Err(err).Msg("aborting call")
	if notifyPeer && m.s.counterpart != "" {
		m.sendBestEffort(domain.Envelope{
			Type: domain.SignalHangup,
			From: m.selfID,
			To:   m.s.counterpart,
		})
	}
	m.teardown()
	m.notifyError(err)
}

// teardown releases every per-call resource exactly once and resets the
// session to idle under a fresh generation.
func (m *Manager) teardown() {
	if m.s.negotiator != nil {
		m.s.negotiator.Teardown()
	}
	m.registry.Release()
	m.binding.CloseOutbound()

	m.s.phase = domain.PhaseEnded
	m.notifyState()
	m.s.reset()
	m.notifyState()
}

func (m *Manager) notifyState() {
	snapshot := domain.CallState{
		Phase:       m.s.phase,
		Kind:        m.s.kind,
		Counterpart: m.s.counterpart,
		Generation:  m.s.generation,
	}
	m.stateMu.Lock()
	m.state = snapshot
	listeners := make([]func(domain.CallState), len(m.onState))
	copy(listeners, m.onState)
	m.stateMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func (m *Manager) notifyError(err error) {
	m.stateMu.Lock()
	listeners := make([]func(error), len(m.onError))
	copy(listeners, m.onError)
	m.stateMu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}

func (m *Manager) submit(ev event) bool {
	select {
	case <-m.done:
		return false
	case m.events <- ev:
		return true
	}
}

// enqueue posts an event from a callback context. A saturated queue blocks
// the caller, so the relay read loop and negotiator callbacks see
// backpressure instead of losing envelopes.
func (m *Manager) enqueue(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}
