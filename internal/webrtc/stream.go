package webrtc

import (
	"sync"

	"github.com/pion/mediadevices"
	pion "github.com/pion/webrtc/v4"

	"wavechat/native/internal/domain"
)

// localStream groups the captured local tracks. Implements domain.MediaStream.
type localStream struct {
	mu     sync.Mutex
	tracks []domain.MediaTrack
}

func (s *localStream) add(t mediadevices.Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, &localTrack{track: t})
	s.mu.Unlock()
}

func (s *localStream) Tracks() []domain.MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MediaTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *localStream) stopAll() {
	for _, t := range s.Tracks() {
		_ = t.Stop()
	}
}

// localTrack wraps a mediadevices capture track. Stop closes the device
// exactly once no matter how many owners release it.
type localTrack struct {
	track mediadevices.Track
	once  sync.Once
	err   error
}

func (t *localTrack) ID() string { return t.track.ID() }

func (t *localTrack) Kind() string {
	if t.track.Kind() == pion.RTPCodecTypeVideo {
		return "video"
	}
	return "audio"
}

func (t *localTrack) Stop() error {
	t.once.Do(func() { t.err = t.track.Close() })
	return t.err
}

// remoteTrack wraps an inbound Pion track. A drain goroutine keeps RTP and
// RTCP flowing until the handle is stopped; the display layer taps frames
// through its own reader.
type remoteTrack struct {
	track *pion.TrackRemote
	once  sync.Once
	stop  chan struct{}
}

func newRemoteTrack(track *pion.TrackRemote) *remoteTrack {
	rt := &remoteTrack{track: track, stop: make(chan struct{})}
	go rt.drain()
	return rt
}

func (t *remoteTrack) ID() string { return t.track.ID() }

func (t *remoteTrack) Kind() string { return t.track.Kind().String() }

func (t *remoteTrack) Stop() error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

func (t *remoteTrack) drain() {
	buf := make([]byte, 1500)
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		if _, _, err := t.track.Read(buf); err != nil {
			return
		}
	}
}
