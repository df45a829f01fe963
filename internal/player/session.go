package player

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sonroyaalmerol/cuebot/internal/queue"
	"github.com/sonroyaalmerol/cuebot/internal/voice"
)

// Session is one guild's queue together with its voice connection and
// playback state. mu serializes every mutation of the session.
type Session struct {
	guildID string
	q       *queue.Queue
	log     *slog.Logger

	mu            sync.Mutex
	state         State
	conn          voice.Conn
	sink          *voice.Sink
	textChannelID string
	gen           uint64
	cur           *playback

	joining chan struct{}
	joinErr error
}

// playback is one attempt at playing the queue head. Outcomes carry gen so
// results of a superseded playback are ignored.
type playback struct {
	gen     uint64
	song    queue.Song
	ctx     context.Context
	cancel  context.CancelFunc
	src     Source
	skipped bool
}

func newSession(guildID string, log *slog.Logger) *Session {
	return &Session{
		guildID: guildID,
		q:       queue.New(guildID, log),
		log:     log.With("guildID", guildID),
		state:   StateIdle,
	}
}

func (s *Session) GuildID() string { return s.guildID }

func (s *Session) Queue() *queue.Queue { return s.q }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// teardown is what a session hands to the voice manager once it is
// destroying.
type teardown struct {
	conn voice.Conn
	sink *voice.Sink
	text string
}

// destroyLocked moves the session to Destroying, empties the queue and
// cancels any playback.
func (s *Session) destroyLocked() teardown {
	s.state = StateDestroying
	s.q.MarkDestroying()
	s.q.Drain()
	if pb := s.cur; pb != nil {
		pb.cancel()
		if pb.src != nil {
			pb.src.Cancel()
		}
		s.cur = nil
	}
	return teardown{conn: s.conn, sink: s.sink, text: s.textChannelID}
}
