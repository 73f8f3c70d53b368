// Package ingest accepts publisher audio over a WebSocket and adapts it into
// the audio source the session controller listens on.
//
// A publisher connects to the ingest endpoint, sends one JSON hello
// describing its stream, then streams binary audio bursts. Only one
// publisher may be connected at a time. Whatever the publisher sends is
// normalised to mono float32 at the pipeline rate before delivery.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/pkg/pcm"
)

// Codecs a publisher may announce in its hello.
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

// helloTimeout bounds how long a fresh connection may take to send its hello.
const helloTimeout = 10 * time.Second

// ErrNoPublisher is returned by Acquire when no publisher is connected.
var ErrNoPublisher = errors.New("ingest: no publisher connected")

// Hello is the first message a publisher sends after connecting.
type Hello struct {
	// Codec is "pcm16" or "opus".
	Codec string `json:"codec"`

	// SampleRate is the publisher's rate in Hz. Opus streams must already be
	// at the pipeline rate; PCM streams at other rates are resampled.
	SampleRate int `json:"sampleRate"`

	// Channels is 1 or 2. Stereo PCM is downmixed; Opus must be mono.
	Channels int `json:"channels"`
}

// helloAck confirms a validated hello back to the publisher.
type helloAck struct {
	Status     string `json:"status"`
	SampleRate int    `json:"sampleRate"`
}

// publisher is the decode state for one connected stream.
type publisher struct {
	hello     Hello
	decoder   *pcm.OpusDecoder
	resampler *pcm.Resampler
}

// Hub owns the single publisher slot and implements the session controller's
// AudioSource. All exported methods are safe for concurrent use.
type Hub struct {
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	pub     *publisher
	deliver func(burst []float32)
}

// NewHub creates a Hub with no publisher connected.
func NewHub(log *slog.Logger, metrics *observe.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Hub{log: log, metrics: metrics}
}

// Acquire wires the controller's deliver callback to the connected
// publisher. Fails with [ErrNoPublisher] when nobody is streaming.
func (h *Hub) Acquire(_ context.Context, deliver func(burst []float32)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pub == nil {
		return ErrNoPublisher
	}
	h.deliver = deliver
	return nil
}

// Release detaches the deliver callback. The publisher stays connected so a
// later session can reuse it.
func (h *Hub) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver = nil
	return nil
}

// Connected reports whether a publisher is currently streaming.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pub != nil
}

// ServeHTTP upgrades the request to a WebSocket and runs the publisher's
// read loop until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("ingest accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "ingest terminated")

	helloCtx, cancel := context.WithTimeout(r.Context(), helloTimeout)
	var hello Hello
	err = wsjson.Read(helloCtx, conn, &hello)
	cancel()
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "expected hello message")
		return
	}

	pub, err := newPublisher(hello)
	if err != nil {
		h.log.Warn("ingest hello rejected", "err", err, "codec", hello.Codec)
		conn.Close(websocket.StatusUnsupportedData, err.Error())
		return
	}

	if !h.register(pub) {
		conn.Close(websocket.StatusPolicyViolation, "publisher already connected")
		return
	}
	defer h.unregister(pub)

	if err := wsjson.Write(r.Context(), conn, helloAck{Status: "ready", SampleRate: pcm.SampleRate}); err != nil {
		return
	}
	h.log.Info("publisher connected",
		"codec", hello.Codec,
		"sample_rate", hello.SampleRate,
		"channels", hello.Channels,
	)

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				h.log.Info("publisher disconnected")
			} else {
				h.log.Warn("publisher read error", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if err := h.ingest(pub, data); err != nil {
			h.log.Warn("burst decode failed", "err", err)
		}
	}
}

// newPublisher validates a hello and builds the decode chain it needs.
func newPublisher(hello Hello) (*publisher, error) {
	pub := &publisher{hello: hello}

	switch hello.Codec {
	case CodecOpus:
		if hello.SampleRate != pcm.SampleRate {
			return nil, fmt.Errorf("ingest: opus streams must be %d Hz, got %d", pcm.SampleRate, hello.SampleRate)
		}
		if hello.Channels != 1 {
			return nil, fmt.Errorf("ingest: opus streams must be mono, got %d channels", hello.Channels)
		}
		dec, err := pcm.NewOpusDecoder()
		if err != nil {
			return nil, err
		}
		pub.decoder = dec

	case CodecPCM16:
		if hello.SampleRate <= 0 {
			return nil, fmt.Errorf("ingest: invalid sample rate %d", hello.SampleRate)
		}
		if hello.Channels != 1 && hello.Channels != 2 {
			return nil, fmt.Errorf("ingest: unsupported channel count %d", hello.Channels)
		}
		if hello.SampleRate != pcm.SampleRate {
			res, err := pcm.NewResampler(hello.SampleRate)
			if err != nil {
				return nil, err
			}
			pub.resampler = res
		}

	default:
		return nil, fmt.Errorf("ingest: unsupported codec %q", hello.Codec)
	}
	return pub, nil
}

// ingest normalises one binary burst and hands it to the acquired deliver
// callback, if any.
func (h *Hub) ingest(pub *publisher, data []byte) error {
	raw := data
	var err error

	if pub.decoder != nil {
		if raw, err = pub.decoder.Decode(data); err != nil {
			return err
		}
	}
	if pub.hello.Channels == 2 {
		if raw, err = pcm.StereoToMono(raw); err != nil {
			return err
		}
	}
	if pub.resampler != nil {
		if raw, err = pub.resampler.Process(raw); err != nil {
			return err
		}
	}

	burst := pcm.BytesToFloat32(raw)
	h.metrics.RecordBurst(context.Background(), pub.hello.Codec)

	h.mu.Lock()
	deliver := h.deliver
	h.mu.Unlock()
	if deliver != nil && len(burst) > 0 {
		deliver(burst)
	}
	return nil
}

// register claims the publisher slot. Returns false when occupied.
func (h *Hub) register(pub *publisher) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pub != nil {
		return false
	}
	h.pub = pub
	h.metrics.ActivePublishers.Add(context.Background(), 1)
	return true
}

// unregister frees the slot and tears down the publisher's decode chain.
func (h *Hub) unregister(pub *publisher) {
	h.mu.Lock()
	if h.pub == pub {
		h.pub = nil
		h.metrics.ActivePublishers.Add(context.Background(), -1)
	}
	h.mu.Unlock()

	if pub.resampler != nil {
		if err := pub.resampler.Close(); err != nil {
			h.log.Warn("resampler close error", "err", err)
		}
	}
}
