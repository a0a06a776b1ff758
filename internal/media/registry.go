// Package media holds the live stream handles for the duration of one call
// and notifies the display layer when they appear or go away. This is the
// only path through which live media reaches the UI.
package media

import (
	"sync"

	"github.com/rs/zerolog/log"

	"wavechat/native/internal/domain"
)

// Slot names one of the two handle positions.
type Slot string

const (
	SlotLocal  Slot = "local"
	SlotRemote Slot = "remote"
)

// Event reports a slot change. Stream is nil when the slot was cleared.
type Event struct {
	Slot   Slot
	Stream domain.MediaStream
}

// Registry is the two-slot media handle holder. Each slot is populated at
// most once per call generation and cleared on teardown.
type Registry struct {
	mu        sync.Mutex
	local     domain.MediaStream
	remote    *remoteStream
	listeners []func(Event)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnChange registers a listener notified on every slot change. Listeners are
// invoked synchronously in registration order.
func (r *Registry) OnChange(fn func(Event)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// SetLocal populates the local slot. A second set within the same call
// generation is ignored.
func (r *Registry) SetLocal(stream domain.MediaStream) {
	r.mu.Lock()
	if r.local != nil {
		r.mu.Unlock()
		log.Warn().Str("component", "media").Msg("local handle already set, ignoring")
		return
	}
	r.local = stream
	r.mu.Unlock()

	r.notify(Event{Slot: SlotLocal, Stream: stream})
}

// AddRemoteTrack publishes an inbound track. The remote slot is created on
// the first track; later tracks of the same call join the existing stream.
func (r *Registry) AddRemoteTrack(track domain.MediaTrack) {
	r.mu.Lock()
	created := r.remote == nil
	if created {
		r.remote = &remoteStream{}
	}
	r.remote.add(track)
	stream := r.remote
	r.mu.Unlock()

	if created {
		r.notify(Event{Slot: SlotRemote, Stream: stream})
	}
}

// Local returns the local handle, nil when empty.
func (r *Registry) Local() domain.MediaStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// Remote returns the remote handle, nil when empty.
func (r *Registry) Remote() domain.MediaStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remote == nil {
		return nil
	}
	return r.remote
}

// Release stops every held track and clears both slots. Idempotent: a
// second release finds empty slots and does nothing, and each track is
// stopped exactly once.
func (r *Registry) Release() {
	r.mu.Lock()
	local := r.local
	remote := r.remote
	r.local = nil
	r.remote = nil
	r.mu.Unlock()

	if local != nil {
		stopTracks(local)
		r.notify(Event{Slot: SlotLocal})
	}
	if remote != nil {
		stopTracks(remote)
		r.notify(Event{Slot: SlotRemote})
	}
}

func (r *Registry) notify(ev Event) {
	r.mu.Lock()
	listeners := make([]func(Event), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func stopTracks(s domain.MediaStream) {
	for _, t := range s.Tracks() {
		if err := t.Stop(); err != nil {
			log.Warn().Str("component", "media").Str("track", t.ID()).Err(err).Msg("stopping track")
		}
	}
}

// remoteStream accumulates inbound tracks for one call.
type remoteStream struct {
	mu     sync.Mutex
	tracks []domain.MediaTrack
}

func (s *remoteStream) add(t domain.MediaTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *remoteStream) Tracks() []domain.MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MediaTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}
