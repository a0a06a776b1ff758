package call

import "wavechat/native/internal/domain"

// session is the single mutable record of an in-progress or pending call.
// It is owned by the manager's event loop; nothing else touches it.
type session struct {
	kind        domain.CallKind
	phase       domain.CallPhase
	counterpart string

	// generation distinguishes this attempt's async completions from a
	// later, unrelated attempt. In-flight results carry the generation they
	// were started under and are discarded when it no longer matches.
	generation uint64

	negotiator domain.Negotiator

	// remoteOffer holds an inbound offer while the session waits for the
	// local accept intent.
	remoteOffer domain.SDPPayload

	// pending buffers remote candidates that arrived before the remote
	// description was set, in arrival order.
	pending []domain.ICECandidatePayload

	// applying gates duplicate answer envelopes while one is being applied.
	applying bool
}

// reset clears the session to idle under a fresh generation so stale async
// completions are discarded.
func (s *session) reset() {
	*s = session{
		phase:      domain.PhaseIdle,
		generation: s.generation + 1,
	}
}
