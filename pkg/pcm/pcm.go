// Package pcm provides the small amount of raw-audio plumbing Earshot needs:
// conversions between 16-bit signed little-endian PCM and normalised float32
// samples, a minimal WAV encoder for classifier uploads, Opus packet decoding
// for compressed ingest, and sample-rate conversion for publishers that do
// not capture at 16 kHz.
package pcm

import (
	"encoding/binary"
	"fmt"
)

// SampleRate is the pipeline-wide sample rate. Every frame handed to the
// analysis components and the classifier is 16 kHz mono.
const SampleRate = 16000

// BytesToFloat32 converts 16-bit signed little-endian PCM bytes to float32
// samples in [-1, 1). A trailing odd byte is ignored.
func BytesToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToBytes converts normalised float32 samples to 16-bit signed
// little-endian PCM bytes. Samples outside [-1, 1] are clamped.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		v := int16(f * 32767)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}

// Int16ToBytes converts int16 samples to little-endian PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a standard RIFF/WAV
// container. Used when uploading frames to the classifier's inference
// endpoint, which expects a self-describing audio file.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// StereoToMono downmixes interleaved 16-bit stereo PCM bytes to mono by
// averaging each sample pair. Returns an error when the input is not a whole
// number of stereo frames.
func StereoToMono(data []byte) ([]byte, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("pcm: stereo data length %d is not a multiple of 4", len(data))
	}
	out := make([]byte, len(data)/2)
	for i := 0; i < len(data); i += 4 {
		l := int16(binary.LittleEndian.Uint16(data[i : i+2]))
		r := int16(binary.LittleEndian.Uint16(data[i+2 : i+4]))
		m := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(out[i/2:i/2+2], uint16(m))
	}
	return out, nil
}
