package queue

import (
	"testing"
)

func titles(songs []Song) []string {
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.Title
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFIFO(t *testing.T) {
	q := New("g1", nil)
	for _, title := range []string{"S1", "S2", "S3"} {
		q.Enqueue(Song{Title: title, Ref: "https://example.com/" + title})
	}

	if got, want := titles(q.Songs()), []string{"S1", "S2", "S3"}; !equal(got, want) {
		t.Fatalf("Songs() = %v, want %v", got, want)
	}

	if !q.ShiftHead() {
		t.Fatal("ShiftHead() = false, want true")
	}
	if got, want := titles(q.Songs()), []string{"S2", "S3"}; !equal(got, want) {
		t.Errorf("Songs() after shift = %v, want %v", got, want)
	}

	head, ok := q.PeekHead()
	if !ok || head.Title != "S2" {
		t.Errorf("PeekHead() = %v, %v, want S2, true", head.Title, ok)
	}
}

func TestShiftEmpty(t *testing.T) {
	q := New("g1", nil)
	if q.ShiftHead() {
		t.Error("ShiftHead() on empty queue = true, want false")
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false, want true")
	}
	if _, ok := q.PeekHead(); ok {
		t.Error("PeekHead() ok = true on empty queue")
	}
}

func TestSongsIsCopy(t *testing.T) {
	q := New("g1", nil)
	q.Enqueue(Song{Title: "S1"})
	s := q.Songs()
	s[0].Title = "mutated"
	if head, _ := q.PeekHead(); head.Title != "S1" {
		t.Errorf("head title = %q, want S1", head.Title)
	}
}

func TestClear(t *testing.T) {
	tests := []struct {
		name    string
		playing bool
		songs   []string
		dropped int
		left    []string
	}{
		{"idle drops all", false, []string{"S1", "S2"}, 2, []string{}},
		{"playing keeps head", true, []string{"S1", "S2", "S3"}, 2, []string{"S1"}},
		{"playing empty", true, nil, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New("g1", nil)
			for _, s := range tt.songs {
				q.Enqueue(Song{Title: s})
			}
			q.SetPlaying(tt.playing)
			if got := q.Clear(); got != tt.dropped {
				t.Errorf("Clear() = %d, want %d", got, tt.dropped)
			}
			if got := titles(q.Songs()); !equal(got, tt.left) {
				t.Errorf("Songs() = %v, want %v", got, tt.left)
			}
			q.Enqueue(Song{Title: "next"})
			if got := q.Len(); got != len(tt.left)+1 {
				t.Errorf("Len() after enqueue = %d, want %d", got, len(tt.left)+1)
			}
		})
	}
}

func TestDrain(t *testing.T) {
	q := New("g1", nil)
	q.Enqueue(Song{Title: "S1"})
	q.Enqueue(Song{Title: "S2"})
	q.SetPlaying(true)
	q.Drain()
	if !q.IsEmpty() {
		t.Errorf("Len() = %d after Drain, want 0", q.Len())
	}
}

type stubHandle struct{ stopped bool }

func (h *stubHandle) Stop() bool {
	was := !h.stopped
	h.stopped = true
	return was
}

func TestIdleHandle(t *testing.T) {
	q := New("g1", nil)
	a, b := &stubHandle{}, &stubHandle{}

	if old := q.SwapIdle(a); old != nil {
		t.Errorf("SwapIdle(a) = %v, want nil", old)
	}
	if old := q.SwapIdle(b); old != a {
		t.Errorf("SwapIdle(b) = %v, want a", old)
	}
	if q.ClearIdleIf(a) {
		t.Error("ClearIdleIf(stale) = true, want false")
	}
	if !q.ClearIdleIf(b) {
		t.Error("ClearIdleIf(current) = false, want true")
	}
	if q.IdleArmed() {
		t.Error("IdleArmed() = true after clear")
	}
}

func TestDestroying(t *testing.T) {
	q := New("g1", nil)
	if q.Destroying() {
		t.Fatal("new queue is destroying")
	}
	q.MarkDestroying()
	if !q.Destroying() {
		t.Error("Destroying() = false after MarkDestroying")
	}
}
