package output

import (
	"fmt"

	pcm "github.com/hannahherbig/2dxrender/internal/audio"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

const opusBitrate = 320000

// writeOpus resamples the master to 48 kHz and writes 20ms Opus packets
// into an Ogg container.
func writeOpus(path string, samples []float32) error {
	resampled, err := pcm.Resample(samples, pcm.Channels, pcm.SampleRate, pcm.OpusSampleRate)
	if err != nil {
		return err
	}
	frames := pcm.ToInt16(resampled)

	enc, err := opus.NewEncoder(pcm.OpusSampleRate, pcm.Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return fmt.Errorf("opus bitrate: %w", err)
	}

	ogg, err := oggwriter.New(path, pcm.OpusSampleRate, pcm.Channels)
	if err != nil {
		return fmt.Errorf("ogg writer: %w", err)
	}

	opusBuf := make([]byte, 4000)
	frame := make([]int16, pcm.OpusFrameSamples)
	var seq uint16
	var ts uint32
	for off := 0; off < len(frames); off += pcm.OpusFrameSamples {
		// The last frame is zero padded.
		n := copy(frame, frames[off:])
		clear(frame[n:])

		size, err := enc.Encode(frame, opusBuf)
		if err != nil {
			ogg.Close()
			return fmt.Errorf("opus encode: %w", err)
		}
		ts += pcm.OpusFrameSize
		seq++
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: ts},
			Payload: opusBuf[:size],
		}
		if err := ogg.WriteRTP(pkt); err != nil {
			ogg.Close()
			return fmt.Errorf("ogg write: %w", err)
		}
	}
	return ogg.Close()
}
