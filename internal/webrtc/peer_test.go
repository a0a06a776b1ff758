package webrtc

import (
	"sync"
	"testing"

	"wavechat/native/internal/domain"
)

type countingTrack struct {
	mu    sync.Mutex
	stops int
}

func (t *countingTrack) ID() string   { return "t" }
func (t *countingTrack) Kind() string { return "audio" }
func (t *countingTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return nil
}

func (t *countingTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func TestPeerClose_StopsRecordedTracksOnce(t *testing.T) {
	p, err := NewPeer(nil)
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}

	track := &countingTrack{}
	if !p.setLocal(&localStream{tracks: []domain.MediaTrack{track}}) {
		t.Fatal("stream refused before close")
	}

	p.Close()
	p.Close()

	if got := track.stopCount(); got != 1 {
		t.Errorf("track stopped %d times, want 1", got)
	}
}

// Capture finishing after a hang-up must not leave an unrecorded stream:
// once the connection is closed the stream is refused and the caller stops
// the tracks itself.
func TestSetLocal_RefusedAfterClose(t *testing.T) {
	p, err := NewPeer(nil)
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}
	p.Close()

	if p.setLocal(&localStream{}) {
		t.Error("stream recorded on a closed connection")
	}
}
