package domain

import "encoding/json"

// SignalType identifies the kind of signaling envelope.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "ice-candidate"
	SignalHangup    SignalType = "hangup"
)

// Envelope is the wire message exchanged over the signaling channel.
// From and To are opaque user identifiers; receivers must drop envelopes
// whose To does not match the local user, because channel fan-out can be
// broader than the intended audience. CallKind is present on offers only.
type Envelope struct {
	Type     SignalType      `json:"type"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	CallKind CallKind        `json:"callKind,omitempty"`
}

// SDPPayload is the JSON structure for SDP offer/answer payloads.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload is the JSON structure for ICE candidate payloads.
type ICECandidatePayload struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URL        string `json:"url"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}
