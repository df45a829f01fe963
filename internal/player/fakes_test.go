package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sonroyaalmerol/cuebot/internal/faults"
	"github.com/sonroyaalmerol/cuebot/internal/idle"
	"github.com/sonroyaalmerol/cuebot/internal/resolver"
	"github.com/sonroyaalmerol/cuebot/internal/stream"
	"github.com/sonroyaalmerol/cuebot/internal/voice"
)

type fakeResolver struct{}

func (fakeResolver) ResolveByURL(ctx context.Context, ref string) (*resolver.Video, error) {
	if strings.Contains(ref, "bad") {
		return nil, faults.UserInputf("resolve", "invalid URL")
	}
	return &resolver.Video{Title: path.Base(ref), URL: ref}, nil
}

func (fakeResolver) Search(ctx context.Context, query string) (*resolver.SearchResults, error) {
	return &resolver.SearchResults{Query: query, Entries: []resolver.Video{
		{Title: query + " 1", URL: "http://example/" + query + "1"},
		{Title: query + " 2", URL: "http://example/" + query + "2"},
	}}, nil
}

// fakeSource is a PCM source the test feeds by hand.
type fakeSource struct {
	ref string
	pr  *io.PipeReader
	pw  *io.PipeWriter
}

func newFakeSource(ctx context.Context, ref string) *fakeSource {
	pr, pw := io.Pipe()
	s := &fakeSource{ref: ref, pr: pr, pw: pw}
	go func() {
		<-ctx.Done()
		s.Cancel()
	}()
	return s
}

func (s *fakeSource) Read(p []byte) (int, error) { return s.pr.Read(p) }
func (s *fakeSource) Cancel()                    { _ = s.pw.CloseWithError(stream.ErrCanceled) }
func (s *fakeSource) finish()                    { _ = s.pw.Close() }
func (s *fakeSource) fail(err error)             { _ = s.pw.CloseWithError(err) }

// frame writes one frame so the sink reports the song as started.
func (s *fakeSource) frame(t *testing.T) {
	t.Helper()
	if _, err := s.pw.Write(make([]byte, frameSize)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

type fakeOpener struct {
	mu       sync.Mutex
	failRefs map[string]error
	opened   chan *fakeSource
	files    []string
	chimeEOF bool
	opens    int
	// gate, when set, holds every Open until closed
	gate chan struct{}
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{failRefs: map[string]error{}, opened: make(chan *fakeSource, 32), chimeEOF: true}
}

func (o *fakeOpener) Open(ctx context.Context, ref string) (Source, error) {
	o.mu.Lock()
	o.opens++
	err := o.failRefs[ref]
	gate := o.gate
	o.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	s := newFakeSource(ctx, ref)
	o.opened <- s
	return s, nil
}

func (o *fakeOpener) OpenFile(ctx context.Context, p string) (Source, error) {
	o.mu.Lock()
	o.files = append(o.files, p)
	eof := o.chimeEOF
	o.mu.Unlock()
	s := newFakeSource(ctx, p)
	if eof {
		s.finish()
	}
	return s, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *fakeOpener) chimes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.files)
}

func (o *fakeOpener) next(t *testing.T) *fakeSource {
	t.Helper()
	select {
	case s := <-o.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no stream opened")
		return nil
	}
}

func (o *fakeOpener) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-o.opened:
		t.Fatalf("unexpected stream opened for %s", s.ref)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeConn struct {
	mu     sync.Mutex
	closed int
	sent   int
}

func (c *fakeConn) ChannelID() string      { return "vc1" }
func (c *fakeConn) Speaking(on bool) error { return nil }
func (c *fakeConn) Send(ctx context.Context, pkt []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}
func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}
func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu    sync.Mutex
	conn  *fakeConn
	err   error
	dials int
	// gate, when set, holds every Dial until closed; entered gets one
	// value per held Dial
	gate    chan struct{}
	entered chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, guildID, channelID string) (voice.Conn, error) {
	d.mu.Lock()
	d.dials++
	gate, entered := d.gate, d.entered
	d.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// hold makes the next dials block until the returned func is called.
func (d *fakeDialer) hold() (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	d.entered = make(chan struct{}, 8)
	gate := d.gate
	return func() { close(gate) }
}

func (d *fakeDialer) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-d.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no voice join started")
	}
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// countingSettings counts preference reads.
type countingSettings struct {
	mu    sync.Mutex
	reads int
}

func (c *countingSettings) GuildPrefs(ctx context.Context, guildID string) (time.Duration, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return DefaultIdleTimeout, DefaultVolume, nil
}

func (c *countingSettings) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Notify(channelID, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) has(msg string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

const frameSize = 4

type passthrough struct{}

func (passthrough) FrameBytes() int { return frameSize }
func (passthrough) EncodeFrame(pcm []byte, onPacket func([]byte) error) error {
	return onPacket(pcm)
}
func (passthrough) Close() {}

type harness struct {
	svc    *Service
	reg    *Registry
	clock  *idle.Manual
	opener *fakeOpener
	conn   *fakeConn
	dialer *fakeDialer
	notes  *fakeNotifier
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		clock:  idle.NewManual(),
		opener: newFakeOpener(),
		conn:   &fakeConn{},
		notes:  &fakeNotifier{},
	}
	h.dialer = &fakeDialer{conn: h.conn}
	h.reg = NewRegistry(log)
	rec := idle.NewReclaimer(h.clock, log)
	vm := voice.NewManager(voice.Options{
		Dialer:    h.dialer,
		Releaser:  h.reg,
		Idle:      rec,
		Scheduler: h.clock,
		Logger:    log,
	})
	opts := Options{
		Registry:     h.reg,
		Resolver:     fakeResolver{},
		Opener:       h.opener,
		Voice:        vm,
		Idle:         rec,
		Encoder:      func() (voice.Encoder, error) { return passthrough{}, nil },
		Notifier:     h.notes,
		Logger:       log,
		CleanupDelay: 200 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.svc = NewService(opts)
	t.Cleanup(func() { h.svc.Shutdown(context.Background()) })
	return h
}

func (h *harness) enqueue(t *testing.T, ref string) Result {
	t.Helper()
	res, err := h.svc.EnqueueAndMaybeStart(context.Background(), Request{
		GuildID:        "g1",
		VoiceChannelID: "vc1",
		TextChannelID:  "tc1",
		RequestedBy:    "u1",
		Reference:      ref,
	})
	if err != nil {
		t.Fatalf("EnqueueAndMaybeStart(%q) error = %v", ref, err)
	}
	return res
}

func (h *harness) titles(t *testing.T) []string {
	t.Helper()
	songs, err := h.svc.ListQueue("g1")
	if errors.Is(err, ErrQueueEmpty) {
		return nil
	}
	if err != nil {
		t.Fatalf("ListQueue() error = %v", err)
	}
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.Title
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
