// Package webrtc drives the media engine for one call session: it wraps a
// Pion PeerConnection behind the domain.Peer port and layers the
// offer/answer negotiation rules on top.
package webrtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"wavechat/native/internal/domain"
)

// Peer wraps a Pion PeerConnection. It implements domain.Peer.
type Peer struct {
	pc       *pion.PeerConnection
	selector *mediadevices.CodecSelector

	mu     sync.Mutex
	local  *localStream
	closed bool
}

// NewPeer creates a PeerConnection configured with the platform codec stack
// and the given ICE servers.
func NewPeer(iceServers []domain.ICEServer) (*Peer, error) {
	m, selector, err := newMediaEngine()
	if err != nil {
		return nil, fmt.Errorf("media engine: %w", err)
	}

	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{s.URL},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers: servers,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Debug().Str("component", "webrtc").Str("state", state.String()).Msg("ICE connection state")
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Debug().Str("component", "webrtc").Str("state", state.String()).Msg("peer connection state")
	})

	return &Peer{pc: pc, selector: selector}, nil
}

// OnICECandidate registers the callback for locally discovered candidates.
// The nil candidate marking end of gathering is swallowed.
func (p *Peer) OnICECandidate(fn func(domain.ICECandidatePayload)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			log.Debug().Str("component", "webrtc").Msg("ICE gathering complete")
			return
		}

		init := c.ToJSON()
		if isLoopback(init.Candidate) {
			return
		}

		sdpMid := ""
		if init.SDPMid != nil {
			sdpMid = *init.SDPMid
		}
		sdpMLineIndex := 0
		if init.SDPMLineIndex != nil {
			sdpMLineIndex = int(*init.SDPMLineIndex)
		}

		fn(domain.ICECandidatePayload{
			SDPMid:        sdpMid,
			SDPMLineIndex: sdpMLineIndex,
			Candidate:     init.Candidate,
		})
	})
}

// OnTrack registers the callback for inbound remote tracks. Each track is
// wrapped in a handle that keeps RTP flowing until it is stopped.
func (p *Peer) OnTrack(fn func(domain.MediaTrack)) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		log.Info().Str("component", "webrtc").
			Str("kind", track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Msg("remote track received")

		rt := newRemoteTrack(track)
		fn(rt)
	})
}

// AttachLocalMedia captures local audio (and video for a video call) and
// attaches the tracks to the connection. A capture failure is reported as a
// MediaAcquisitionError; the call must not proceed without local media.
func (p *Peer) AttachLocalMedia(kind domain.CallKind) (domain.MediaStream, error) {
	tracks, err := captureUserMedia(p.selector, kind)
	if err != nil {
		return nil, &domain.MediaAcquisitionError{Err: err}
	}

	ls := &localStream{}
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Str("component", "webrtc").Err(err).Msg("local track ended")
			}
		})
		if _, err := p.pc.AddTrack(track); err != nil {
			ls.stopAll()
			track.Close()
			return nil, fmt.Errorf("attach local track: %w", err)
		}
		ls.add(track)
	}

	if !p.setLocal(ls) {
		// Hung up while capture was in flight; the devices must not stay open.
		ls.stopAll()
		return nil, fmt.Errorf("peer connection closed")
	}

	log.Info().Str("component", "webrtc").Int("tracks", len(tracks)).Msg("local media attached")
	return ls, nil
}

// setLocal records the captured stream for Close to stop later. It refuses
// once the connection is closed; the caller then owns stopping the tracks.
func (p *Peer) setLocal(ls *localStream) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.local = ls
	return true
}

// CreateOffer produces the local offer and sets it as the local description.
func (p *Peer) CreateOffer() (domain.SDPPayload, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SDPPayload{Type: "offer", SDP: offer.SDP}, nil
}

// CreateAnswer produces the local answer and sets it as the local
// description. The remote offer must already be applied.
func (p *Peer) CreateAnswer() (domain.SDPPayload, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SDPPayload{Type: "answer", SDP: answer.SDP}, nil
}

// SetRemoteDescription applies a remote offer or answer.
func (p *Peer) SetRemoteDescription(desc domain.SDPPayload) error {
	var sdpType pion.SDPType
	switch desc.Type {
	case "offer":
		sdpType = pion.SDPTypeOffer
	case "answer":
		sdpType = pion.SDPTypeAnswer
	default:
		return fmt.Errorf("unknown description type %q", desc.Type)
	}

	if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: sdpType, SDP: desc.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// AddICECandidate applies a remote candidate. The remote description must be
// set first; ordering is enforced by the caller.
func (p *Peer) AddICECandidate(candidate domain.ICECandidatePayload) error {
	sdpMLineIndex := uint16(candidate.SDPMLineIndex)
	init := pion.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &candidate.SDPMid,
		SDPMLineIndex: &sdpMLineIndex,
	}

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// Close shuts down the connection and stops local capture. Idempotent.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	local := p.local
	p.mu.Unlock()

	if local != nil {
		local.stopAll()
	}
	if err := p.pc.Close(); err != nil {
		log.Warn().Str("component", "webrtc").Err(err).Msg("closing peer connection")
	}
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
