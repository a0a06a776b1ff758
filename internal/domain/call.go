package domain

// CallKind selects the media profile of a call. Audio is always captured;
// video is added only for KindVideo.
type CallKind string

const (
	KindVoice CallKind = "voice"
	KindVideo CallKind = "video"
)

// CallPhase is the lifecycle phase of the local call session.
type CallPhase string

const (
	PhaseIdle     CallPhase = "idle"
	PhaseOutgoing CallPhase = "outgoing-pending"
	PhaseIncoming CallPhase = "incoming-pending"
	PhaseActive   CallPhase = "active"
	PhaseEnded    CallPhase = "ended"
)

// CallState is the read-only snapshot handed to the UI layer.
type CallState struct {
	Phase        CallPhase
	Kind         CallKind
	Counterpart  string
	Generation   uint64
}
