// Package voice owns voice connections: joining, noticing when a connection
// is lost for good, tearing a guild down, and the audio sink.
package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sonroyaalmerol/cuebot/internal/faults"
	"github.com/sonroyaalmerol/cuebot/internal/idle"
	"github.com/sonroyaalmerol/cuebot/internal/queue"
)

const DefaultReconnectWindow = 5 * time.Second

// Link is a sign that Discord is re-establishing a dropped connection.
type Link int

const (
	// LinkSignalling is a voice server update for the guild.
	LinkSignalling Link = iota
	// LinkConnecting is the bot's voice state showing a channel again.
	LinkConnecting
)

func (l Link) String() string {
	if l == LinkSignalling {
		return "signalling"
	}
	return "connecting"
}

// Releaser drops a guild's registry entry, but only while it still holds q.
type Releaser interface {
	Release(guildID string, q *queue.Queue)
}

type IdleCanceler interface {
	Cancel(q *queue.Queue)
}

type Options struct {
	Dialer          Dialer
	Releaser        Releaser
	Idle            IdleCanceler
	Scheduler       idle.Scheduler
	ReconnectWindow time.Duration
	Logger          *slog.Logger
}

type Manager struct {
	dialer   Dialer
	releaser Releaser
	idle     IdleCanceler
	sched    idle.Scheduler
	window   time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	waits map[string]*reconnectWait
}

type reconnectWait struct {
	timer idle.Handle
	done  bool
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		dialer:   opts.Dialer,
		releaser: opts.Releaser,
		idle:     opts.Idle,
		sched:    opts.Scheduler,
		window:   opts.ReconnectWindow,
		log:      opts.Logger,
		waits:    make(map[string]*reconnectWait),
	}
	if m.sched == nil {
		m.sched = idle.RealTime{}
	}
	if m.window <= 0 {
		m.window = DefaultReconnectWindow
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Connect joins channelID in guildID.
func (m *Manager) Connect(ctx context.Context, guildID, channelID string) (Conn, error) {
	conn, err := m.dialer.Dial(ctx, guildID, channelID)
	if err != nil {
		m.log.Error("voice join failed", "guildID", guildID, "channelID", channelID, "err", err)
		return nil, &faults.Error{Kind: faults.Connection, Op: "voice join", Err: err}
	}
	m.log.Info("joined voice channel", "guildID", guildID, "channelID", channelID)
	return conn, nil
}

// Disconnected starts the reconnect grace window for guildID. A Signal of
// either kind inside the window ends it quietly; otherwise onLost runs once.
// Both waits share the same window, so a single timer bounds them.
func (m *Manager) Disconnected(guildID string, onLost func()) {
	w := &reconnectWait{}

	m.mu.Lock()
	if old, ok := m.waits[guildID]; ok {
		old.done = true
		old.timer.Stop()
	}
	m.waits[guildID] = w
	m.mu.Unlock()

	m.log.Info("voice disconnected, waiting for reconnect", "guildID", guildID, "window", m.window)
	h := m.sched.AfterFunc(m.window, func() {
		if !m.finish(guildID, w) {
			return
		}
		m.log.Warn("voice connection lost", "guildID", guildID)
		onLost()
	})

	m.mu.Lock()
	w.timer = h
	if w.done {
		h.Stop()
	}
	m.mu.Unlock()
}

// Signal reports reconnect progress for guildID.
func (m *Manager) Signal(guildID string, link Link) {
	m.mu.Lock()
	w, ok := m.waits[guildID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if m.finish(guildID, w) {
		m.log.Info("voice reconnected", "guildID", guildID, "via", link.String())
	}
}

// finish claims w. Only the first caller gets true.
func (m *Manager) finish(guildID string, w *reconnectWait) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.done {
		return false
	}
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if m.waits[guildID] == w {
		delete(m.waits, guildID)
	}
	return true
}

// Waiting reports whether a reconnect window is open for guildID.
func (m *Manager) Waiting(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.waits[guildID]
	return ok
}

// Teardown releases everything a guild session holds, in order: playback
// flag, idle timer, registry entry, sink, connection. sink and conn may be
// nil.
func (m *Manager) Teardown(ctx context.Context, guildID string, q *queue.Queue, sink *Sink, conn Conn) {
	q.SetPlaying(false)
	if m.idle != nil {
		m.idle.Cancel(q)
	}
	if m.releaser != nil {
		m.releaser.Release(guildID, q)
	}
	if sink != nil {
		sink.Stop()
	}

	m.mu.Lock()
	if w, ok := m.waits[guildID]; ok {
		w.done = true
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(m.waits, guildID)
	}
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(ctx); err != nil {
			m.log.Warn("voice disconnect", "guildID", guildID, "err", err)
		}
	}
	m.log.Info("session torn down", "guildID", guildID)
}
