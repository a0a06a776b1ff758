package media

import (
	"sync"
	"testing"

	"wavechat/native/internal/domain"
)

type stubTrack struct {
	id    string
	kind  string
	mu    sync.Mutex
	stops int
}

func (t *stubTrack) ID() string   { return t.id }
func (t *stubTrack) Kind() string { return t.kind }
func (t *stubTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return nil
}

func (t *stubTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type stubStream struct {
	tracks []domain.MediaTrack
}

func (s *stubStream) Tracks() []domain.MediaTrack { return s.tracks }

func TestSetLocal_PopulatesOnceAndNotifies(t *testing.T) {
	r := NewRegistry()

	var events []Event
	r.OnChange(func(ev Event) { events = append(events, ev) })

	first := &stubStream{}
	second := &stubStream{}
	r.SetLocal(first)
	r.SetLocal(second) // ignored: slot settable at most once per generation

	if r.Local() != first {
		t.Error("local slot overwritten within one call generation")
	}
	if len(events) != 1 || events[0].Slot != SlotLocal || events[0].Stream != first {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestAddRemoteTrack_CreatesStreamOnFirstTrack(t *testing.T) {
	r := NewRegistry()

	var populated int
	r.OnChange(func(ev Event) {
		if ev.Slot == SlotRemote && ev.Stream != nil {
			populated++
		}
	})

	if r.Remote() != nil {
		t.Fatal("remote slot non-nil before any track")
	}

	r.AddRemoteTrack(&stubTrack{id: "v", kind: "video"})
	r.AddRemoteTrack(&stubTrack{id: "a", kind: "audio"})

	remote := r.Remote()
	if remote == nil {
		t.Fatal("remote slot empty after tracks arrived")
	}
	if got := len(remote.Tracks()); got != 2 {
		t.Errorf("expected 2 remote tracks, got %d", got)
	}
	if populated != 1 {
		t.Errorf("remote slot populated %d times, want 1", populated)
	}
}

func TestRelease_StopsEveryTrackExactlyOnce(t *testing.T) {
	r := NewRegistry()

	l1 := &stubTrack{id: "l1", kind: "audio"}
	l2 := &stubTrack{id: "l2", kind: "video"}
	r1 := &stubTrack{id: "r1", kind: "video"}
	r.SetLocal(&stubStream{tracks: []domain.MediaTrack{l1, l2}})
	r.AddRemoteTrack(r1)

	for i := 0; i < 3; i++ {
		r.Release()
	}

	for _, track := range []*stubTrack{l1, l2, r1} {
		if got := track.stopCount(); got != 1 {
			t.Errorf("track %s stopped %d times, want 1", track.ID(), got)
		}
	}
	if r.Local() != nil || r.Remote() != nil {
		t.Error("slots not cleared by release")
	}
}

func TestRelease_NotifiesClearedSlots(t *testing.T) {
	r := NewRegistry()
	r.SetLocal(&stubStream{})
	r.AddRemoteTrack(&stubTrack{id: "r", kind: "audio"})

	var cleared []Slot
	r.OnChange(func(ev Event) {
		if ev.Stream == nil {
			cleared = append(cleared, ev.Slot)
		}
	})

	r.Release()
	if len(cleared) != 2 {
		t.Fatalf("expected both slots to clear, got %v", cleared)
	}

	// A second release has nothing left to report.
	cleared = nil
	r.Release()
	if len(cleared) != 0 {
		t.Errorf("idempotent release emitted events: %v", cleared)
	}
}

func TestNewGenerationAfterRelease_SlotsReusable(t *testing.T) {
	r := NewRegistry()

	r.SetLocal(&stubStream{})
	r.Release()

	next := &stubStream{}
	r.SetLocal(next)
	if r.Local() != next {
		t.Error("local slot not settable in a new call generation")
	}
}
