package stream

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

const (
	// FrameSamples is 20 ms per channel at 48 kHz.
	FrameSamples = 960
	// FrameBytes is one s16le stereo frame.
	FrameBytes = FrameSamples * Channels * 2

	DefaultBitrate = 128_000
)

// OpusEncoder turns 20 ms PCM frames into Opus packets through libopus.
// Not safe for concurrent use.
type OpusEncoder struct {
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	packet *astiav.Packet
}

func NewOpusEncoder(bitrate int64) (*OpusEncoder, error) {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}

	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, errors.New("libopus encoder not found")
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("alloc libopus codec context")
	}
	cc.SetSampleRate(SampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	cc.SetBitRate(bitrate)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("frame_duration", "20", 0)
	_ = opts.Set("application", "audio", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, fmt.Errorf("open libopus: %w", err)
	}

	frame := astiav.AllocFrame()
	if frame == nil {
		cc.Free()
		return nil, errors.New("alloc audio frame")
	}
	frame.SetSampleRate(SampleRate)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetSampleFormat(astiav.SampleFormatS16)
	frame.SetNbSamples(FrameSamples)
	if err := frame.AllocBuffer(0); err != nil {
		frame.Free()
		cc.Free()
		return nil, fmt.Errorf("alloc frame buffer: %w", err)
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		frame.Free()
		cc.Free()
		return nil, errors.New("alloc packet")
	}
	return &OpusEncoder{cc: cc, frame: frame, packet: pkt}, nil
}

func (e *OpusEncoder) FrameBytes() int { return FrameBytes }

// EncodeFrame encodes exactly one FrameBytes frame of interleaved s16le PCM.
func (e *OpusEncoder) EncodeFrame(pcm []byte, onPacket func([]byte) error) error {
	if len(pcm) != FrameBytes {
		return fmt.Errorf("pcm frame is %d bytes, want %d", len(pcm), FrameBytes)
	}
	if err := e.frame.Data().SetBytes(pcm, 0); err != nil {
		return fmt.Errorf("set frame data: %w", err)
	}
	if err := e.cc.SendFrame(e.frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return e.receive(onPacket)
}

// Flush drains packets still held by the codec. The encoder cannot be used
// afterwards.
func (e *OpusEncoder) Flush(onPacket func([]byte) error) error {
	if err := e.cc.SendFrame(nil); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return nil
		}
		return fmt.Errorf("send flush frame: %w", err)
	}
	return e.receive(onPacket)
}

func (e *OpusEncoder) receive(onPacket func([]byte) error) error {
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive packet: %w", err)
		}
		// the packet buffer is reused on the next receive
		data := append([]byte(nil), e.packet.Data()...)
		if err := onPacket(data); err != nil {
			return err
		}
	}
}

func (e *OpusEncoder) Close() {
	if e.packet != nil {
		e.packet.Free()
		e.packet = nil
	}
	if e.frame != nil {
		e.frame.Free()
		e.frame = nil
	}
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
}
