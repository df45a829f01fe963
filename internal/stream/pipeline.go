package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
	"golang.org/x/sync/errgroup"

	"github.com/sonroyaalmerol/cuebot/internal/faults"
	"github.com/sonroyaalmerol/cuebot/internal/logging"
)

const (
	DefaultBufferSize = 1 << 20

	SampleRate = 48000
	Channels   = 2
)

// ErrCanceled is what a Stream reports after Cancel. It is never a fault.
var ErrCanceled = errors.New("stream canceled")

// IsBenign reports whether err is the expected fallout of an intentional
// cancellation.
func IsBenign(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// CommandFunc builds one pipeline stage. The argument is the media reference
// for the extraction stage and the ffmpeg input for the transcoding stage.
type CommandFunc func(ctx context.Context, arg string) *exec.Cmd

type Options struct {
	YtdlpPath  string
	FfmpegPath string
	BufferSize int
	Logger     *slog.Logger

	// Extract and Transcode replace the default yt-dlp and ffmpeg commands.
	Extract   CommandFunc
	Transcode CommandFunc
}

type Pipeline struct {
	extract   CommandFunc
	transcode CommandFunc
	bufSize   int
	log       *slog.Logger
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		extract:   opts.Extract,
		transcode: opts.Transcode,
		bufSize:   opts.BufferSize,
		log:       opts.Logger,
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.bufSize <= 0 {
		p.bufSize = DefaultBufferSize
	}
	if p.extract == nil {
		exe := opts.YtdlpPath
		p.extract = func(ctx context.Context, ref string) *exec.Cmd {
			cmd := ytdlp.New().
				Format("bestaudio").
				Output("-").
				NoPlaylist().
				NoWarnings()
			if exe != "" {
				cmd = cmd.SetExecutable(exe)
			}
			return cmd.BuildCommand(ctx, ref)
		}
	}
	if p.transcode == nil {
		exe := opts.FfmpegPath
		if exe == "" {
			exe = "ffmpeg"
		}
		p.transcode = func(ctx context.Context, input string) *exec.Cmd {
			return exec.CommandContext(ctx, exe, TranscodeArgs(input)...)
		}
	}
	return p
}

// TranscodeArgs are the ffmpeg arguments producing s16le, 48 kHz, stereo PCM
// on stdout from the first audio stream of input.
func TranscodeArgs(input string) []string {
	return []string{
		"-i", input,
		"-map", "0:a",
		"-f", "s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-loglevel", "error",
		"pipe:1",
	}
}

// Stream is the PCM output of a running pipeline.
type Stream struct {
	buf    *ringBuffer
	parent context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	once     sync.Once
	canceled atomic.Bool
	produced atomic.Int64

	done chan struct{}
	err  error
}

// Open starts yt-dlp for ref and pipes it through ffmpeg.
func (p *Pipeline) Open(ctx context.Context, ref string) (*Stream, error) {
	if ref == "" {
		return nil, faults.New(faults.Pipeline, "open stream", "empty media reference")
	}

	s := p.newStream(ctx)
	g, gctx := errgroup.WithContext(s.parent)

	ext := p.extract(gctx, ref)
	tr := p.transcode(gctx, "pipe:0")
	extLog := logging.NewToolWriter(s.log, "yt-dlp")
	trLog := logging.NewErrorWriter(s.log, "ffmpeg")
	ext.Stderr = extLog
	tr.Stderr = trLog
	ext.WaitDelay = 2 * time.Second
	tr.WaitDelay = 2 * time.Second

	extOut, err := ext.StdoutPipe()
	if err != nil {
		s.cancel()
		return nil, faults.Wrap(faults.Pipeline, "yt-dlp stdout", err)
	}
	trIn, err := tr.StdinPipe()
	if err != nil {
		s.cancel()
		return nil, faults.Wrap(faults.Pipeline, "ffmpeg stdin", err)
	}
	trOut, err := tr.StdoutPipe()
	if err != nil {
		s.cancel()
		return nil, faults.Wrap(faults.Pipeline, "ffmpeg stdout", err)
	}

	if err := ext.Start(); err != nil {
		s.cancel()
		return nil, faults.Wrap(faults.Pipeline, "start yt-dlp", err)
	}
	if err := tr.Start(); err != nil {
		s.cancel()
		_ = ext.Wait()
		return nil, faults.Wrap(faults.Pipeline, "start ffmpeg", err)
	}
	s.log.Debug("pipeline started", "ref", ref, "ytdlpPID", ext.Process.Pid, "ffmpegPID", tr.Process.Pid)

	g.Go(func() error {
		fed := &countingWriter{w: trIn}
		_, cerr := io.Copy(fed, extOut)
		_ = trIn.Close()
		if cerr != nil && !s.stopped() && gctx.Err() == nil {
			// ffmpeg stopped reading; yt-dlp would block forever on a full pipe
			_ = ext.Process.Kill()
		}
		werr := ext.Wait()
		extLog.Flush()
		if werr == nil && cerr != nil && fed.n.Load() == 0 {
			werr = cerr
		}
		return s.stageDone(gctx, "yt-dlp", werr, fed.n.Load() > 0, extLog)
	})
	g.Go(func() error {
		return s.drain(gctx, tr, trOut, trLog)
	})

	go s.supervise(g)
	return s, nil
}

// OpenFile decodes a local audio file through ffmpeg alone.
func (p *Pipeline) OpenFile(ctx context.Context, path string) (*Stream, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, faults.Wrap(faults.Pipeline, "open asset", err)
	}

	s := p.newStream(ctx)
	g, gctx := errgroup.WithContext(s.parent)

	tr := p.transcode(gctx, path)
	trLog := logging.NewErrorWriter(s.log, "ffmpeg")
	tr.Stderr = trLog
	tr.WaitDelay = 2 * time.Second

	trOut, err := tr.StdoutPipe()
	if err != nil {
		s.cancel()
		return nil, faults.Wrap(faults.Pipeline, "ffmpeg stdout", err)
	}
	if err := tr.Start(); err != nil {
		s.cancel()
		return nil, faults.Wrap(faults.Pipeline, "start ffmpeg", err)
	}
	s.log.Debug("file pipeline started", "path", path, "ffmpegPID", tr.Process.Pid)

	g.Go(func() error {
		return s.drain(gctx, tr, trOut, trLog)
	})

	go s.supervise(g)
	return s, nil
}

func (p *Pipeline) newStream(ctx context.Context) *Stream {
	sctx, cancel := context.WithCancel(ctx)
	return &Stream{
		buf:    newRingBuffer(p.bufSize),
		parent: sctx,
		cancel: cancel,
		log:    p.log,
		done:   make(chan struct{}),
	}
}

// drain copies the transcoder's stdout into the ring buffer until EOF and
// then reaps the process. Per exec.Cmd, Wait must follow the last read.
func (s *Stream) drain(gctx context.Context, tr *exec.Cmd, out io.Reader, trLog *logging.ToolWriter) error {
	sink := &countingWriter{w: s.buf, total: &s.produced}
	_, cerr := io.Copy(sink, out)
	werr := tr.Wait()
	trLog.Flush()

	if cerr != nil && !errors.Is(cerr, ErrCanceled) && !s.stopped() && gctx.Err() == nil {
		return faults.Wrap(faults.Pipeline, "buffer", cerr)
	}
	return s.stageDone(gctx, "ffmpeg", werr, sink.n.Load() > 0, trLog)
}

func (s *Stream) stageDone(gctx context.Context, stage string, err error, produced bool, tool *logging.ToolWriter) error {
	if err == nil {
		return nil
	}
	if s.stopped() {
		s.log.Debug("stage exited after cancel", "stage", stage, "err", err)
		return nil
	}
	if gctx.Err() != nil {
		// killed because the other stage failed first
		return nil
	}
	if produced {
		s.log.Warn("stage exited with error after output started", "stage", stage, "err", err)
		return nil
	}
	return &faults.Error{Kind: faults.Pipeline, Op: stage, Msg: tool.Tail(), Err: err}
}

func (s *Stream) supervise(g *errgroup.Group) {
	err := g.Wait()
	switch {
	case s.stopped():
		err = ErrCanceled
	case err == nil && s.produced.Load() == 0:
		err = faults.New(faults.Pipeline, "ffmpeg", "no audio produced")
	}
	if err != nil && !IsBenign(err) {
		s.log.Warn("pipeline failed", "err", err)
	}
	s.err = err
	s.buf.CloseWrite(err)
	close(s.done)
	s.cancel()
}

// stopped is true after Cancel or once the caller's context ends. Only
// meaningful before supervise releases the context.
func (s *Stream) stopped() bool {
	return s.canceled.Load() || s.parent.Err() != nil
}

// Read returns PCM bytes. After the pipeline ends it returns io.EOF, a
// *faults.Error of kind Pipeline, or ErrCanceled.
func (s *Stream) Read(p []byte) (int, error) {
	return s.buf.Read(p)
}

// Cancel kills both processes and drops buffered audio. Safe to call more
// than once and from any goroutine.
func (s *Stream) Cancel() {
	s.once.Do(func() {
		s.canceled.Store(true)
		s.cancel()
		s.buf.Close()
	})
}

// Done is closed once every process has been reaped.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err is valid after Done is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

func (s *Stream) Buffered() int { return s.buf.Buffered() }

type countingWriter struct {
	w     io.Writer
	n     atomic.Int64
	total *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	if c.total != nil {
		c.total.Add(int64(n))
	}
	return n, err
}
