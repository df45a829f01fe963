package queue

import (
	"log/slog"
	"slices"
	"sync"
)

type Song struct {
	Title       string
	Ref         string // playable URL handed to the extraction stage
	RequestedBy string
	SessionTag  string
}

// TimerHandle is a pending idle timer. Stop reports whether it prevented the
// timer from firing.
type TimerHandle interface {
	Stop() bool
}

// Queue is one guild's ordered song list plus playback flags. All methods are
// safe for concurrent use; a Queue never touches another guild's state.
type Queue struct {
	guildID string
	log     *slog.Logger

	mu         sync.Mutex
	songs      []Song
	playing    bool
	destroying bool
	idle       TimerHandle
}

func New(guildID string, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{guildID: guildID, log: log}
}

func (q *Queue) GuildID() string { return q.guildID }

// Enqueue appends without any capacity limit.
func (q *Queue) Enqueue(song Song) {
	q.mu.Lock()
	q.songs = append(q.songs, song)
	n := len(q.songs)
	q.mu.Unlock()

	q.log.Info("added song to queue",
		"guildID", q.guildID,
		"title", song.Title,
		"requestedBy", song.RequestedBy,
		"session", song.SessionTag,
		"position", n,
	)
}

func (q *Queue) PeekHead() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 {
		return Song{}, false
	}
	return q.songs[0], true
}

// ShiftHead drops the head song. It returns false, and does nothing, when the
// queue is already empty.
func (q *Queue) ShiftHead() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 {
		return false
	}
	q.songs[0] = Song{}
	q.songs = q.songs[1:]
	return true
}

func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.songs)
}

// Songs returns a copy in play order.
func (q *Queue) Songs() []Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.songs)
}

// Clear drops pending songs. While playing, the head is the song being
// streamed and stays in place.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	keep := 0
	if q.playing && len(q.songs) > 0 {
		keep = 1
	}
	dropped := len(q.songs) - keep
	q.songs = q.songs[:keep:keep]
	return dropped
}

// Drain drops every song, including one being streamed.
func (q *Queue) Drain() {
	q.mu.Lock()
	q.songs = nil
	q.mu.Unlock()
}

func (q *Queue) SetPlaying(v bool) {
	q.mu.Lock()
	q.playing = v
	q.mu.Unlock()
}

func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// MarkDestroying is one-way; a destroyed queue is never reused.
func (q *Queue) MarkDestroying() {
	q.mu.Lock()
	q.destroying = true
	q.mu.Unlock()
}

func (q *Queue) Destroying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.destroying
}

// SwapIdle installs h as the pending idle timer and returns the previous one.
func (q *Queue) SwapIdle(h TimerHandle) TimerHandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	old := q.idle
	q.idle = h
	return old
}

// ClearIdleIf removes h when it is still the installed timer. It reports
// whether h was current.
func (q *Queue) ClearIdleIf(h TimerHandle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.idle == nil || q.idle != h {
		return false
	}
	q.idle = nil
	return true
}

func (q *Queue) IdleArmed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle != nil
}
