// Package signal binds call signaling onto the pub/sub relay. Each user owns
// one long-lived inbound channel named call:<userId>; a call attempt
// additionally opens the counterpart's channel for its duration. Envelopes
// are always published to the recipient's channel and filtered by addressee
// on receipt, since channel fan-out can reach more than the intended party.
package signal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"wavechat/native/internal/domain"
)

// channelFor names the relay channel owned by a user.
func channelFor(userID string) string {
	return "call:" + userID
}

// Binding implements domain.Binding on top of a domain.Transport.
type Binding struct {
	transport domain.Transport

	mu       sync.Mutex
	selfID   string
	inbound  string // currently subscribed inbound channel, "" when closed
	outbound string // currently subscribed outbound channel, "" when closed
	handler  func(domain.Envelope)
}

// New creates a Binding over the given transport. Call OpenInbound before
// expecting any envelopes.
func New(transport domain.Transport) *Binding {
	return &Binding{transport: transport}
}

// OnEnvelope registers the envelope handler. Must be set before OpenInbound;
// envelopes arriving with no handler are dropped.
func (b *Binding) OnEnvelope(handler func(domain.Envelope)) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
}

// OpenInbound subscribes to the local user's channel. Idempotent for the
// same identity; a changed identity (re-authentication) closes the previous
// channel and opens the new one.
func (b *Binding) OpenInbound(selfID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := channelFor(selfID)
	if b.inbound == ch {
		return nil
	}
	if b.inbound != "" {
		if err := b.transport.Unsubscribe(b.inbound); err != nil {
			log.Warn().Str("component", "signal").Err(err).Msg("closing stale inbound channel")
		}
		b.inbound = ""
	}

	if err := b.transport.Subscribe(ch, b.dispatch); err != nil {
		return fmt.Errorf("open inbound channel: %w", err)
	}
	b.selfID = selfID
	b.inbound = ch
	log.Info().Str("component", "signal").Str("channel", ch).Msg("inbound channel open")
	return nil
}

// OpenOutbound opens the transient channel toward targetID for one call
// attempt. An already-open outbound channel for a previous attempt is closed
// first.
func (b *Binding) OpenOutbound(targetID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeOutboundLocked()

	ch := channelFor(targetID)
	if err := b.transport.Subscribe(ch, b.dispatch); err != nil {
		return fmt.Errorf("open outbound channel: %w", err)
	}
	b.outbound = ch
	return nil
}

// CloseOutbound closes the outbound channel if one is open. Safe to call
// repeatedly; each opened channel is closed exactly once.
func (b *Binding) CloseOutbound() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeOutboundLocked()
}

func (b *Binding) closeOutboundLocked() {
	if b.outbound == "" {
		return
	}
	if err := b.transport.Unsubscribe(b.outbound); err != nil {
		log.Warn().Str("component", "signal").Err(err).Msg("closing outbound channel")
	}
	b.outbound = ""
}

// Send publishes one envelope to the recipient's channel. Best-effort:
// a failure is returned to the caller and never retried here.
func (b *Binding) Send(env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.transport.Publish(channelFor(env.To), data)
}

// Close releases the inbound and outbound channels.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeOutboundLocked()
	if b.inbound != "" {
		if err := b.transport.Unsubscribe(b.inbound); err != nil {
			log.Warn().Str("component", "signal").Err(err).Msg("closing inbound channel")
		}
		b.inbound = ""
	}
}

// dispatch decodes one relay message and forwards it when it is addressed
// to the local user.
func (b *Binding) dispatch(data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("component", "signal").Err(err).Msg("dropping malformed envelope")
		return
	}

	b.mu.Lock()
	selfID := b.selfID
	handler := b.handler
	b.mu.Unlock()

	if env.To != selfID {
		return
	}
	if handler == nil {
		log.Warn().Str("component", "signal").Str("type", string(env.Type)).Msg("no envelope handler registered")
		return
	}
	handler(env)
}
