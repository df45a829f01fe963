package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
)

// ErrStopped is returned by Play when Stop ended it.
var ErrStopped = errors.New("sink stopped")

// Encoder turns fixed-size PCM frames into Opus packets.
type Encoder interface {
	FrameBytes() int
	EncodeFrame(pcm []byte, onPacket func([]byte) error) error
	Close()
}

type EncoderFunc func() (Encoder, error)

// Sink plays PCM on a voice connection, one source at a time.
type Sink struct {
	conn       Conn
	newEncoder EncoderFunc
	log        *slog.Logger

	mu  sync.Mutex
	cur *play
}

type play struct {
	cancel  context.CancelFunc
	stopped bool
}

func NewSink(conn Conn, newEncoder EncoderFunc, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{conn: conn, newEncoder: newEncoder, log: log}
}

func (s *Sink) Conn() Conn { return s.conn }

// Play streams src until it ends, fails, or Stop is called. volume scales
// every sample; 1.0 leaves the PCM untouched. onStart runs once, after the
// first packet was handed to the connection.
func (s *Sink) Play(ctx context.Context, src io.Reader, volume float64, onStart func()) error {
	pctx, cancel := context.WithCancel(ctx)
	p := &play{cancel: cancel}
	s.mu.Lock()
	if s.cur != nil {
		s.cur.stopped = true
		s.cur.cancel()
	}
	s.cur = p
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		if s.cur == p {
			s.cur = nil
		}
		s.mu.Unlock()
	}()

	enc, err := s.newEncoder()
	if err != nil {
		return err
	}
	defer enc.Close()

	_ = s.conn.Speaking(true)
	defer func() { _ = s.conn.Speaking(false) }()

	frame := make([]byte, enc.FrameBytes())
	started := false
	dropped := 0
	send := func(pkt []byte) error {
		err := s.conn.Send(pctx, pkt)
		if errors.Is(err, ErrSendTimeout) {
			dropped++
			s.log.Debug("dropped packet", "consecutive", dropped)
			return nil
		}
		if err != nil {
			return err
		}
		dropped = 0
		if !started {
			started = true
			if onStart != nil {
				onStart()
			}
		}
		return nil
	}

	for {
		if pctx.Err() != nil {
			return s.result(p, pctx.Err())
		}
		n, err := io.ReadFull(src, frame)
		last := false
		switch {
		case err == io.EOF:
			return nil
		case err == io.ErrUnexpectedEOF:
			clear(frame[n:])
			last = true
		case err != nil:
			return s.result(p, err)
		}

		applyGain(frame, volume)
		if err := enc.EncodeFrame(frame, send); err != nil {
			return s.result(p, err)
		}
		if last {
			return nil
		}
	}
}

func (s *Sink) result(p *play, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	return err
}

// Stop ends the current Play, if any. A Play blocked reading its source
// returns once the source is closed.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.stopped = true
		s.cur.cancel()
	}
}

// applyGain scales s16le samples in place, clamping at the int16 range.
func applyGain(pcm []byte, volume float64) {
	if volume == 1 {
		return
	}
	if volume < 0 {
		volume = 0
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		v = math.Round(v * volume)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		u := uint16(int16(v))
		pcm[i] = byte(u)
		pcm[i+1] = byte(u >> 8)
	}
}
