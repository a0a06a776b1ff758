//go:build linux && cgo

package webrtc

import (
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	pion "github.com/pion/webrtc/v4"

	"wavechat/native/internal/domain"
)

// newMediaEngine builds a MediaEngine with VP8 and Opus encoders and the
// codec selector that capture must share with it.
func newMediaEngine() (*pion.MediaEngine, *mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	m := &pion.MediaEngine{}
	selector.Populate(m)
	return m, selector, nil
}

// captureUserMedia opens the microphone, and the camera for a video call,
// through V4L2/malgo.
func captureUserMedia(selector *mediadevices.CodecSelector, kind domain.CallKind) ([]mediadevices.Track, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: selector}
	constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}

	if kind == domain.KindVideo {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only: MJPEG V4L2 nodes can emit malformed frames
			// that poison the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, err
	}
	return stream.GetTracks(), nil
}
