//go:build !linux || !cgo

package webrtc

import (
	"errors"

	"github.com/pion/mediadevices"
	pion "github.com/pion/webrtc/v4"

	"wavechat/native/internal/domain"
)

// newMediaEngine registers the default codecs. No encoder selector is
// available without platform capture drivers.
func newMediaEngine() (*pion.MediaEngine, *mediadevices.CodecSelector, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, nil, err
	}
	return m, nil, nil
}

// captureUserMedia always fails here: camera/mic capture needs the
// platform-specific drivers (V4L2/malgo on Linux). A call cannot proceed
// without local media, so the session is aborted upstream.
func captureUserMedia(_ *mediadevices.CodecSelector, _ domain.CallKind) ([]mediadevices.Track, error) {
	return nil, errors.New("media capture not supported on this platform")
}
