package webrtc

import (
	"fmt"
	"sync"

	"wavechat/native/internal/domain"
)

// Negotiator layers the offer/answer protocol rules on a domain.Peer: each
// description is set at most once per session, an answer needs a prior local
// offer, and candidates are only applied once the remote description exists.
// One Negotiator serves exactly one call generation.
type Negotiator struct {
	peer domain.Peer

	mu        sync.Mutex
	localSet  bool
	remoteSet bool
	local     domain.MediaStream
	torn      bool
}

// NewNegotiator wraps peer and wires its event callbacks. Locally discovered
// candidates and inbound remote tracks are forwarded as they occur.
func NewNegotiator(peer domain.Peer, cb domain.NegotiatorCallbacks) *Negotiator {
	if cb.OnLocalCandidate != nil {
		peer.OnICECandidate(cb.OnLocalCandidate)
	}
	if cb.OnRemoteTrack != nil {
		peer.OnTrack(cb.OnRemoteTrack)
	}
	return &Negotiator{peer: peer}
}

// Factory returns a NegotiatorFactory producing a fresh Pion-backed
// negotiator per call generation, configured with the given ICE servers.
func Factory(iceServers []domain.ICEServer) domain.NegotiatorFactory {
	return func(cb domain.NegotiatorCallbacks) (domain.Negotiator, error) {
		peer, err := NewPeer(iceServers)
		if err != nil {
			return nil, err
		}
		return NewNegotiator(peer, cb), nil
	}
}

// CreateOffer acquires local media for kind, attaches it and produces the
// local offer. Capture failure aborts the call: the error propagates and the
// caller tears the session down.
func (n *Negotiator) CreateOffer(kind domain.CallKind) (domain.SDPPayload, error) {
	n.mu.Lock()
	if n.localSet {
		n.mu.Unlock()
		return domain.SDPPayload{}, &domain.ProtocolError{Reason: "local description already set"}
	}
	n.mu.Unlock()

	stream, err := n.peer.AttachLocalMedia(kind)
	if err != nil {
		return domain.SDPPayload{}, err
	}

	offer, err := n.peer.CreateOffer()
	if err != nil {
		return domain.SDPPayload{}, err
	}

	n.mu.Lock()
	n.localSet = true
	n.local = stream
	n.mu.Unlock()
	return offer, nil
}

// CreateAnswer acquires local media, applies the remote offer and produces
// the local answer.
func (n *Negotiator) CreateAnswer(kind domain.CallKind, offer domain.SDPPayload) (domain.SDPPayload, error) {
	n.mu.Lock()
	if n.localSet || n.remoteSet {
		n.mu.Unlock()
		return domain.SDPPayload{}, &domain.ProtocolError{Reason: "session already negotiated"}
	}
	n.mu.Unlock()

	stream, err := n.peer.AttachLocalMedia(kind)
	if err != nil {
		return domain.SDPPayload{}, err
	}

	if err := n.peer.SetRemoteDescription(offer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("apply remote offer: %w", err)
	}
	n.mu.Lock()
	n.remoteSet = true
	n.mu.Unlock()

	answer, err := n.peer.CreateAnswer()
	if err != nil {
		return domain.SDPPayload{}, err
	}

	n.mu.Lock()
	n.localSet = true
	n.local = stream
	n.mu.Unlock()
	return answer, nil
}

// ApplyRemoteAnswer applies the counterpart's answer. Valid only once and
// only after a local offer exists; anything else is a protocol error that
// aborts the call but never the process.
func (n *Negotiator) ApplyRemoteAnswer(answer domain.SDPPayload) error {
	n.mu.Lock()
	if !n.localSet {
		n.mu.Unlock()
		return &domain.ProtocolError{Reason: "answer received before local offer"}
	}
	if n.remoteSet {
		n.mu.Unlock()
		return &domain.ProtocolError{Reason: "duplicate remote description"}
	}
	n.mu.Unlock()

	if err := n.peer.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("apply remote answer: %w", err)
	}

	n.mu.Lock()
	n.remoteSet = true
	n.mu.Unlock()
	return nil
}

// AddRemoteCandidate applies a candidate immediately when the remote
// description is set, and tells the caller to buffer otherwise.
func (n *Negotiator) AddRemoteCandidate(candidate domain.ICECandidatePayload) error {
	n.mu.Lock()
	ready := n.remoteSet
	n.mu.Unlock()

	if !ready {
		return domain.ErrNoRemoteDescription
	}
	return n.peer.AddICECandidate(candidate)
}

// LocalStream returns the captured local stream, nil before capture.
func (n *Negotiator) LocalStream() domain.MediaStream {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.local
}

// Teardown closes the connection and stops local capture. Idempotent.
func (n *Negotiator) Teardown() {
	n.mu.Lock()
	if n.torn {
		n.mu.Unlock()
		return
	}
	n.torn = true
	n.mu.Unlock()

	n.peer.Close()
}
