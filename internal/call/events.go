package call

import "wavechat/native/internal/domain"

// event is anything the manager's loop consumes: local intents, inbound
// envelopes, and completions of async negotiation work. Translating every
// callback into this single queue keeps all session mutation on one
// goroutine.
type event interface{}

type evStart struct {
	target string
	kind   domain.CallKind
	reply  chan error
}

type evAccept struct {
	reply chan error
}

type evEnd struct {
	reply chan error
}

type evEnvelope struct {
	env domain.Envelope
}

// evOfferReady completes the caller-side CreateOffer.
type evOfferReady struct {
	gen uint64
	sdp domain.SDPPayload
	err error
}

// evAnswerReady completes the callee-side CreateAnswer.
type evAnswerReady struct {
	gen uint64
	sdp domain.SDPPayload
	err error
}

// evAnswerApplied completes the caller-side ApplyRemoteAnswer.
type evAnswerApplied struct {
	gen uint64
	err error
}

// evLocalCandidate carries a locally discovered ICE candidate.
type evLocalCandidate struct {
	gen       uint64
	candidate domain.ICECandidatePayload
}

// evRemoteTrack carries an inbound media track.
type evRemoteTrack struct {
	gen   uint64
	track domain.MediaTrack
}
