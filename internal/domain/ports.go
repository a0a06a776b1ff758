package domain

// Transport is the pub/sub relay primitive signaling rides on. Delivery is
// best-effort; a failed publish or subscribe surfaces as a TransportError
// and is never retried by the transport itself.
type Transport interface {
	Subscribe(channel string, onMessage func(data []byte)) error
	Publish(channel string, data []byte) error
	Unsubscribe(channel string) error
	Close()
}

// Binding is the signaling channel binding: one long-lived inbound channel
// keyed by the local user, plus a transient outbound channel per call
// attempt.
type Binding interface {
	// OpenInbound subscribes to the local user's channel. Re-opening for the
	// same identity is a no-op; a new identity closes the old channel first.
	OpenInbound(selfID string) error
	// OpenOutbound opens the transient channel for one call attempt.
	OpenOutbound(targetID string) error
	// CloseOutbound closes the outbound channel. Safe to call when none is open.
	CloseOutbound()
	// Send publishes one envelope toward env.To. Best-effort, no retries.
	Send(env Envelope) error
	// OnEnvelope registers the handler invoked once per envelope addressed
	// to the local user. Envelopes with a foreign To are dropped before the
	// handler sees them.
	OnEnvelope(handler func(Envelope))
	Close()
}

// MediaTrack is one live capture or playback track.
type MediaTrack interface {
	ID() string
	Kind() string // "audio" or "video"
	Stop() error
}

// MediaStream is a group of live tracks handed to the display layer.
type MediaStream interface {
	Tracks() []MediaTrack
}

// Peer is the narrow surface of the media engine's connection object. The
// core drives it; it never reaches into codec negotiation or transport.
type Peer interface {
	OnICECandidate(fn func(ICECandidatePayload))
	OnTrack(fn func(MediaTrack))
	// AttachLocalMedia captures local audio (and video for KindVideo) and
	// attaches the tracks to the connection.
	AttachLocalMedia(kind CallKind) (MediaStream, error)
	CreateOffer() (SDPPayload, error)
	CreateAnswer() (SDPPayload, error)
	SetRemoteDescription(desc SDPPayload) error
	AddICECandidate(candidate ICECandidatePayload) error
	Close()
}

// Negotiator owns one media session for one call generation.
type Negotiator interface {
	// CreateOffer acquires local media and produces the local offer.
	CreateOffer(kind CallKind) (SDPPayload, error)
	// CreateAnswer acquires local media, applies the remote offer and
	// produces the local answer.
	CreateAnswer(kind CallKind, offer SDPPayload) (SDPPayload, error)
	// ApplyRemoteAnswer is valid only after CreateOffer succeeded and only
	// once; violations return a ProtocolError.
	ApplyRemoteAnswer(answer SDPPayload) error
	// AddRemoteCandidate applies a candidate, or returns
	// ErrNoRemoteDescription when the caller must buffer it.
	AddRemoteCandidate(candidate ICECandidatePayload) error
	// LocalStream returns the captured local stream, nil before capture.
	LocalStream() MediaStream
	// Teardown closes the connection and stops local tracks. Idempotent.
	Teardown()
}

// NegotiatorCallbacks are the two event paths out of a negotiator: locally
// discovered candidates are forwarded immediately, never batched, and
// inbound remote tracks are published as they arrive.
type NegotiatorCallbacks struct {
	OnLocalCandidate func(ICECandidatePayload)
	OnRemoteTrack    func(MediaTrack)
}

// NegotiatorFactory builds a fresh Negotiator for one call generation.
// Descriptions are never reused across generations.
type NegotiatorFactory func(cb NegotiatorCallbacks) (Negotiator, error)
