package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sonroyaalmerol/cuebot/internal/idle"
	"github.com/sonroyaalmerol/cuebot/internal/logging"
	"github.com/sonroyaalmerol/cuebot/internal/queue"
	"github.com/sonroyaalmerol/cuebot/internal/resolver"
	"github.com/sonroyaalmerol/cuebot/internal/stream"
	"github.com/sonroyaalmerol/cuebot/internal/ui"
	"github.com/sonroyaalmerol/cuebot/internal/voice"
)

var (
	ErrNoQueue       = errors.New("there is no queue")
	ErrQueueEmpty    = errors.New("the queue is empty")
	ErrDisconnecting = errors.New("the bot is disconnecting")
)

const (
	DefaultIdleTimeout  = 60 * time.Second
	DefaultVolume       = 0.5
	DefaultChimeVolume  = 0.6
	DefaultCleanupDelay = 2500 * time.Millisecond
)

type Resolver interface {
	ResolveByURL(ctx context.Context, ref string) (*resolver.Video, error)
	Search(ctx context.Context, query string) (*resolver.SearchResults, error)
}

// Source is a PCM stream that can be abandoned from any goroutine.
type Source interface {
	io.Reader
	Cancel()
}

type Opener interface {
	Open(ctx context.Context, ref string) (Source, error)
	OpenFile(ctx context.Context, path string) (Source, error)
}

// PipelineOpener adapts a stream.Pipeline to Opener.
type PipelineOpener struct {
	P *stream.Pipeline
}

func (o PipelineOpener) Open(ctx context.Context, ref string) (Source, error) {
	s, err := o.P.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (o PipelineOpener) OpenFile(ctx context.Context, path string) (Source, error) {
	s, err := o.P.OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Notifier posts messages that are not replies to a command.
type Notifier interface {
	Notify(channelID, msg string)
}

// SettingsStore supplies per-guild preferences.
type SettingsStore interface {
	GuildPrefs(ctx context.Context, guildID string) (idleTimeout time.Duration, volume float64, err error)
}

type Options struct {
	Context  context.Context
	Registry *Registry
	Resolver Resolver
	Opener   Opener
	Voice    *voice.Manager
	Idle     *idle.Reclaimer
	Encoder  voice.EncoderFunc
	Settings SettingsStore
	Notifier Notifier
	Logger   *slog.Logger

	IdleTimeout  time.Duration
	Volume       float64
	ChimePath    string
	ChimeVolume  float64
	CleanupDelay time.Duration
}

type Service struct {
	base     context.Context
	reg      *Registry
	resolver Resolver
	opener   Opener
	voice    *voice.Manager
	idle     *idle.Reclaimer
	encoder  voice.EncoderFunc
	settings SettingsStore
	notifier Notifier
	log      *slog.Logger

	idleTimeout  time.Duration
	volume       float64
	chimePath    string
	chimeVolume  float64
	cleanupDelay time.Duration
}

func NewService(opts Options) *Service {
	s := &Service{
		base:         opts.Context,
		reg:          opts.Registry,
		resolver:     opts.Resolver,
		opener:       opts.Opener,
		voice:        opts.Voice,
		idle:         opts.Idle,
		encoder:      opts.Encoder,
		settings:     opts.Settings,
		notifier:     opts.Notifier,
		log:          opts.Logger,
		idleTimeout:  opts.IdleTimeout,
		volume:       opts.Volume,
		chimePath:    opts.ChimePath,
		chimeVolume:  opts.ChimeVolume,
		cleanupDelay: opts.CleanupDelay,
	}
	if s.base == nil {
		s.base = context.Background()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.reg == nil {
		s.reg = NewRegistry(s.log)
	}
	if s.idle == nil {
		s.idle = idle.NewReclaimer(nil, s.log)
	}
	if s.idleTimeout == 0 {
		s.idleTimeout = DefaultIdleTimeout
	}
	if s.volume <= 0 {
		s.volume = DefaultVolume
	}
	if s.chimeVolume <= 0 {
		s.chimeVolume = DefaultChimeVolume
	}
	if s.cleanupDelay <= 0 {
		s.cleanupDelay = DefaultCleanupDelay
	}
	return s
}

func (s *Service) Registry() *Registry { return s.reg }

type Request struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	RequestedBy    string
	Reference      string
}

type Result struct {
	// Song is the enqueued song.
	Song queue.Song
	// Started is true when the song started right away; the caller announces
	// it instead of reporting a queue position.
	Started  bool
	Position int
}

// EnqueueAndMaybeStart resolves req.Reference, adds it to the guild's queue
// and starts playback when the guild was idle. Resolution happens before
// any session is created, so a bad reference leaves no trace.
func (s *Service) EnqueueAndMaybeStart(ctx context.Context, req Request) (Result, error) {
	tag := uuid.NewString()[:8]
	log := logging.Session(s.log, tag, req.RequestedBy).With("guildID", req.GuildID)

	if sess := s.reg.Get(req.GuildID); sess != nil && sess.q.Destroying() {
		return Result{}, ErrDisconnecting
	}

	v, err := s.resolver.ResolveByURL(ctx, req.Reference)
	if err != nil {
		log.Warn("resolve failed", "ref", req.Reference, "err", err)
		return Result{}, err
	}
	return s.enqueue(ctx, req, songFrom(*v, req.RequestedBy, tag), log)
}

// EnqueueVideo adds an already resolved video, such as a search pick.
func (s *Service) EnqueueVideo(ctx context.Context, req Request, v resolver.Video) (Result, error) {
	tag := uuid.NewString()[:8]
	log := logging.Session(s.log, tag, req.RequestedBy).With("guildID", req.GuildID)
	return s.enqueue(ctx, req, songFrom(v, req.RequestedBy, tag), log)
}

func songFrom(v resolver.Video, user, tag string) queue.Song {
	return queue.Song{Title: v.Title, Ref: v.URL, RequestedBy: user, SessionTag: tag}
}

func (s *Service) Search(ctx context.Context, query string) ([]resolver.Video, error) {
	res, err := s.resolver.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (s *Service) enqueue(ctx context.Context, req Request, song queue.Song, log *slog.Logger) (Result, error) {
	sess, created := s.reg.GetOrCreate(req.GuildID)
	if created {
		log.Debug("new guild session")
	}
	if err := s.join(ctx, sess, req.VoiceChannelID); err != nil {
		return Result{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == StateDestroying || sess.q.Destroying() {
		return Result{}, ErrDisconnecting
	}
	if req.TextChannelID != "" {
		sess.textChannelID = req.TextChannelID
	}

	sess.q.Enqueue(song)
	pos := sess.q.Len()
	s.idle.Cancel(sess.q)

	next, act := Transition(sess.state, EventEnqueued, pos)
	sess.state = next
	res := Result{Song: song, Position: pos}
	if act == ActionStartHead {
		s.startLocked(sess, false)
		res.Started = true
	}
	return res, nil
}

// join connects the session once. Concurrent callers wait for the first
// attempt and share its result. A session torn down while the attempt was
// in flight never keeps the new connection.
func (s *Service) join(ctx context.Context, sess *Session, channelID string) error {
	sess.mu.Lock()
	if sess.state == StateDestroying || sess.q.Destroying() {
		sess.mu.Unlock()
		return ErrDisconnecting
	}
	if sess.conn != nil {
		sess.mu.Unlock()
		return nil
	}
	if ch := sess.joining; ch != nil {
		sess.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.conn == nil {
			return sess.joinErr
		}
		return nil
	}
	ch := make(chan struct{})
	sess.joining = ch
	sess.mu.Unlock()

	conn, err := s.voice.Connect(ctx, sess.guildID, channelID)

	sess.mu.Lock()
	sess.joining = nil
	stopped := sess.state == StateDestroying || sess.q.Destroying()
	switch {
	case err != nil:
		// nothing was queued yet; retire the empty session so no later
		// caller holding it can join again
		sess.q.MarkDestroying()
		sess.state = StateDestroying
	case stopped:
		err = ErrDisconnecting
	default:
		sess.conn = conn
		sess.sink = voice.NewSink(conn, s.encoder, sess.log)
	}
	sess.joinErr = err
	close(ch)
	sess.mu.Unlock()

	switch {
	case stopped && conn != nil:
		sess.log.Info("stopped while joining, leaving voice")
		s.voice.Teardown(s.base, sess.guildID, sess.q, nil, conn)
	case err != nil:
		s.voice.Teardown(ctx, sess.guildID, sess.q, nil, nil)
	}
	return err
}

// startLocked begins playback of the queue head.
func (s *Service) startLocked(sess *Session, announce bool) {
	head, ok := sess.q.PeekHead()
	if !ok {
		sess.state = StateIdle
		sess.q.SetPlaying(false)
		return
	}
	sess.gen++
	ctx, cancel := context.WithCancel(s.base)
	pb := &playback{gen: sess.gen, song: head, ctx: ctx, cancel: cancel}
	sess.cur = pb
	sess.q.SetPlaying(true)
	if announce {
		s.notify(sess.textChannelID, ui.NowPlaying(head.Title))
	}
	go s.run(sess, pb)
}

func (s *Service) run(sess *Session, pb *playback) {
	log := logging.Session(sess.log, pb.song.SessionTag, pb.song.RequestedBy)
	defer pb.cancel()

	src, err := s.opener.Open(pb.ctx, pb.song.Ref)
	if err != nil {
		s.finish(sess, pb, err, log)
		return
	}
	defer src.Cancel()

	sess.mu.Lock()
	pb.src = src
	skipped := pb.skipped
	sink := sess.sink
	sess.mu.Unlock()

	if skipped || pb.ctx.Err() != nil {
		s.finish(sess, pb, nil, log)
		return
	}
	if sink == nil {
		s.finish(sess, pb, errors.New("no audio sink"), log)
		return
	}

	_, volume := s.prefs(sess.guildID)
	log.Info("playing", "title", pb.song.Title)
	err = sink.Play(pb.ctx, src, volume, func() {
		s.event(sess, pb.gen, EventStarted, nil)
	})
	s.finish(sess, pb, err, log)
}

// finish turns a playback outcome into a state machine event.
func (s *Service) finish(sess *Session, pb *playback, err error, log *slog.Logger) {
	sess.mu.Lock()
	skipped := pb.skipped
	sess.mu.Unlock()

	ev := EventCompleted
	switch {
	case skipped:
		log.Debug("playback skipped", "title", pb.song.Title)
	case err == nil:
		log.Info("playback finished", "title", pb.song.Title)
	case errors.Is(err, voice.ErrStopped), stream.IsBenign(err), errors.Is(err, context.Canceled):
		log.Debug("playback canceled", "title", pb.song.Title, "err", err)
	default:
		log.Error("playback failed", "title", pb.song.Title, "err", err)
		ev = EventFailed
	}
	s.event(sess, pb.gen, ev, err)
}

func (s *Service) event(sess *Session, gen uint64, ev Event, cause error) {
	sess.mu.Lock()
	if gen != sess.gen {
		sess.mu.Unlock()
		sess.log.Debug("dropping stale playback event", "event", ev, "gen", gen)
		return
	}
	from := sess.state
	next, act := Transition(from, ev, sess.q.Len())
	sess.state = next
	if act != ActionNone {
		sess.log.Debug("playback transition", "from", from, "event", ev, "to", next, "action", act)
	}

	var title string
	if sess.cur != nil {
		title = sess.cur.song.Title
	}

	switch act {
	case ActionAdvance:
		if ev == EventFailed {
			s.notify(sess.textChannelID, ui.SkippedFailed(title))
		}
		sess.q.ShiftHead()
		s.startLocked(sess, true)
	case ActionShiftAndIdle:
		sess.q.ShiftHead()
		sess.q.SetPlaying(false)
		sess.cur = nil
		sess.mu.Unlock()
		s.armIdle(sess, gen)
		return
	case ActionTeardown:
		td := sess.destroyLocked()
		sess.mu.Unlock()
		sess.log.Warn("last song failed, tearing down", "title", title, "err", cause)
		s.notify(td.text, ui.PlaybackFailed(title))
		s.voice.Teardown(s.base, sess.guildID, sess.q, td.sink, td.conn)
		return
	}
	sess.mu.Unlock()
}

// armIdle starts the idle reclaimer with the guild's configured timeout.
// The settings read happens off the session lock, so the session is checked
// again before arming.
func (s *Service) armIdle(sess *Session, gen uint64) {
	idleTimeout, _ := s.prefs(sess.guildID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if gen != sess.gen || sess.state != StateIdle || !sess.q.IsEmpty() || sess.q.Destroying() {
		return
	}
	if err := s.idle.Arm(sess.q, idleTimeout, func() { s.reclaim(sess) }); err != nil {
		sess.log.Error("idle reclaimer not armed", "err", err)
	}
}

// reclaim runs when the idle timer fires. It only acts on a session that is
// still idle with nothing queued.
func (s *Service) reclaim(sess *Session) {
	sess.mu.Lock()
	if sess.state != StateIdle || !sess.q.IsEmpty() || sess.q.Destroying() {
		sess.mu.Unlock()
		return
	}
	if _, act := Transition(sess.state, EventStop, 0); act != ActionTeardown {
		sess.mu.Unlock()
		return
	}
	td := sess.destroyLocked()
	sess.mu.Unlock()

	sess.log.Info("idle timeout, leaving voice")
	s.playChime(td.sink)
	s.notify(td.text, ui.MsgInactive)
	s.voice.Teardown(s.base, sess.guildID, sess.q, td.sink, td.conn)
}

// playChime plays the disconnect sound, bounded by the cleanup delay.
func (s *Service) playChime(sink *voice.Sink) {
	if sink == nil || s.chimePath == "" {
		return
	}
	ctx, cancel := context.WithTimeout(s.base, s.cleanupDelay)
	defer cancel()

	src, err := s.opener.OpenFile(ctx, s.chimePath)
	if err != nil {
		s.log.Debug("chime unavailable", "path", s.chimePath, "err", err)
		return
	}
	defer src.Cancel()
	if err := sink.Play(ctx, src, s.chimeVolume, nil); err != nil && !errors.Is(err, context.DeadlineExceeded) && !stream.IsBenign(err) {
		s.log.Debug("chime playback", "err", err)
	}
}

// Skip ends the current song; the queue then advances as if it had finished.
func (s *Service) Skip(guildID string) error {
	sess := s.reg.Get(guildID)
	if sess == nil {
		return ErrNoQueue
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == StateDestroying {
		return ErrDisconnecting
	}
	if sess.q.IsEmpty() || sess.cur == nil {
		return ErrQueueEmpty
	}
	// under the session lock the sink can only be playing this song
	sess.cur.skipped = true
	if sess.cur.src != nil {
		sess.cur.src.Cancel()
	}
	if sess.sink != nil {
		sess.sink.Stop()
	}
	sess.log.Info("skipped", "title", sess.cur.song.Title)
	return nil
}

// Stop clears the queue and leaves voice, however much was queued.
func (s *Service) Stop(ctx context.Context, guildID string) error {
	sess := s.reg.Get(guildID)
	if sess == nil {
		return ErrNoQueue
	}
	sess.mu.Lock()
	if _, act := Transition(sess.state, EventStop, sess.q.Len()); act != ActionTeardown {
		sess.mu.Unlock()
		return ErrDisconnecting
	}
	td := sess.destroyLocked()
	sess.mu.Unlock()

	sess.log.Info("player stopped")
	s.voice.Teardown(ctx, guildID, sess.q, td.sink, td.conn)
	return nil
}

// ListQueue returns the queue in play order; the head is the current song.
func (s *Service) ListQueue(guildID string) ([]queue.Song, error) {
	sess := s.reg.Get(guildID)
	if sess == nil {
		return nil, ErrNoQueue
	}
	songs := sess.q.Songs()
	if len(songs) == 0 {
		return nil, ErrQueueEmpty
	}
	return songs, nil
}

// Clean drops every pending song but keeps the one playing.
func (s *Service) Clean(guildID string) (int, error) {
	sess := s.reg.Get(guildID)
	if sess == nil {
		return 0, ErrNoQueue
	}
	n := sess.q.Clear()
	sess.log.Info("queue cleaned", "dropped", n)
	return n, nil
}

// ConnectionDropped starts the reconnect grace window for the guild's
// session, if it has one.
func (s *Service) ConnectionDropped(guildID string) {
	sess := s.reg.Get(guildID)
	if sess == nil || sess.q.Destroying() {
		return
	}
	s.voice.Disconnected(guildID, func() { s.connectionLost(sess) })
}

func (s *Service) VoiceSignal(guildID string, link voice.Link) {
	s.voice.Signal(guildID, link)
}

func (s *Service) connectionLost(sess *Session) {
	sess.mu.Lock()
	if s.reg.Get(sess.guildID) != sess || sess.state == StateDestroying {
		sess.mu.Unlock()
		return
	}
	td := sess.destroyLocked()
	sess.mu.Unlock()

	s.notify(td.text, ui.MsgConnLost)
	// the connection is already gone; Close only releases local state
	s.voice.Teardown(s.base, sess.guildID, sess.q, td.sink, td.conn)
}

// Shutdown stops every session.
func (s *Service) Shutdown(ctx context.Context) {
	for _, id := range s.reg.GuildIDs() {
		if err := s.Stop(ctx, id); err != nil && !errors.Is(err, ErrNoQueue) {
			s.log.Debug("shutdown stop", "guildID", id, "err", err)
		}
	}
}

func (s *Service) prefs(guildID string) (time.Duration, float64) {
	idleTimeout, volume := s.idleTimeout, s.volume
	if s.settings == nil {
		return idleTimeout, volume
	}
	ctx, cancel := context.WithTimeout(s.base, 2*time.Second)
	defer cancel()
	d, v, err := s.settings.GuildPrefs(ctx, guildID)
	if err != nil {
		s.log.Warn("guild settings unavailable, using defaults", "guildID", guildID, "err", err)
		return idleTimeout, volume
	}
	return d, v
}

func (s *Service) notify(channelID, msg string) {
	if s.notifier == nil || channelID == "" {
		return
	}
	go s.notifier.Notify(channelID, msg)
}
