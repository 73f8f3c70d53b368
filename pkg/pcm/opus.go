package pcm

import (
	"fmt"

	"layeh.com/gopus"
)

// Opus publishers send 20 ms mono packets at the pipeline rate.
const (
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms packet.
	opusFrameSize = SampleRate * opusFrameSizeMs / 1000 // 320
)

// OpusDecoder decodes Opus packets from a single publisher into 16 kHz mono
// PCM. Each publisher needs its own decoder so that the codec's internal
// state stays consistent across consecutive packets. Not safe for concurrent
// use.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a decoder configured for the pipeline's sample rate.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(SampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("pcm: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into 16-bit little-endian PCM bytes.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	samples, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("pcm: opus decode: %w", err)
	}
	return Int16ToBytes(samples), nil
}
