package player

import (
	"log/slog"
	"sync"

	"github.com/sonroyaalmerol/cuebot/internal/queue"
)

// Registry maps guild IDs to their live session. The map lock is only held
// for single map operations.
type Registry struct {
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log, sessions: make(map[string]*Session)}
}

// GetOrCreate returns the guild's session, creating it on first use.
func (r *Registry) GetOrCreate(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s, false
	}
	s := newSession(guildID, r.log)
	r.sessions[guildID] = s
	r.log.Info("session created", "guildID", guildID)
	return s, true
}

func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// Release removes the guild's entry if it still belongs to q. A newer session
// for the same guild is left alone.
func (r *Registry) Release(guildID string, q *queue.Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok && s.q == q {
		delete(r.sessions, guildID)
		r.log.Info("session removed", "guildID", guildID)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) GuildIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
