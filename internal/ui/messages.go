package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	MsgQueueEmpty    = "❌ The queue is empty."
	MsgNoQueue       = "❌ There is no queue."
	MsgSkipped       = "⏭️ Skipped current song."
	MsgStopped       = "🛑 Player stopped and queue cleared."
	MsgCleaned       = "🧹 Queue cleaned."
	MsgDisconnecting = "❌ The bot is disconnecting. Try again in 3 seconds."
	MsgInactive      = "⏰ Bot disconnected due to inactivity. See you soon! 👋"
	MsgNotInVoice    = "You must be in a voice channel to play music!"
	MsgSelectPrompt  = "Select a song to play."
	MsgSelected      = "✅ Selection received."
	MsgConnLost      = "❌ Lost the voice connection. Player stopped."
	MsgNotYourMenu   = "This selection belongs to someone else."

	SelectPlaceholder = "Select a video"
	QueueHeader       = "🎧 **Cola actual:**"

	// MaxLabel is the longest option label before truncation.
	MaxLabel = 50
)

func NowPlaying(title string) string {
	return fmt.Sprintf("🎶 Now playing: %s", title)
}

func AddedToQueue(title string) string {
	return fmt.Sprintf("Song %s added to queue.", title)
}

func SkippedFailed(title string) string {
	return fmt.Sprintf("⚠️ Could not play %s, skipping.", title)
}

func PlaybackFailed(title string) string {
	return fmt.Sprintf("❌ Could not play %s. Player stopped.", title)
}

// NoSelection reports a select menu that was left unanswered for d.
func NoSelection(d time.Duration) string {
	return fmt.Sprintf("No song selected within %s, cancelling.", window(d))
}

func window(d time.Duration) string {
	unit, n := "second", int(d.Round(time.Second)/time.Second)
	if d >= time.Minute && d%time.Minute == 0 {
		unit, n = "minute", int(d/time.Minute)
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", n, unit)
}

func Failed(msg string) string {
	return "❌ " + msg
}

// QueueList renders the titles in play order, one numbered line each.
func QueueList(titles []string) string {
	var b strings.Builder
	b.WriteString(QueueHeader)
	for i, t := range titles {
		fmt.Fprintf(&b, "\n%d. **%s**", i+1, t)
	}
	return b.String()
}

var labelJunk = regexp.MustCompile(`[\\'",.;:!@#$%^&*(){}\[\]|<>?]`)

// Label makes a title safe for a select menu option.
func Label(title string) string {
	s := strings.TrimSpace(labelJunk.ReplaceAllString(title, ""))
	if s == "" {
		return "Unknown"
	}
	return Truncate(s, MaxLabel)
}

// Truncate cuts s to n runes and appends "..." when it was longer.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
