package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/cuebot/internal/config"
	"github.com/sonroyaalmerol/cuebot/internal/faults"
	"github.com/sonroyaalmerol/cuebot/internal/player"
	"github.com/sonroyaalmerol/cuebot/internal/queue"
	"github.com/sonroyaalmerol/cuebot/internal/repository"
	"github.com/sonroyaalmerol/cuebot/internal/resolver"
	"github.com/sonroyaalmerol/cuebot/internal/ui"
)

func TestSelectionsDeliver(t *testing.T) {
	sel := newSelections()
	nonce, ch := sel.open("alice")

	if got := sel.deliver(nonce, "bob", "0"); got != notYours {
		t.Errorf("deliver(bob) = %v, want notYours", got)
	}
	if got := sel.deliver(nonce, "alice", "2"); got != delivered {
		t.Errorf("deliver(alice) = %v, want delivered", got)
	}
	if got := sel.deliver(nonce, "alice", "3"); got != expired {
		t.Errorf("second deliver = %v, want expired", got)
	}

	v, ok := sel.wait(context.Background(), nonce, ch, time.Second)
	if !ok || v != "2" {
		t.Errorf("wait() = %q, %v, want 2, true", v, ok)
	}
}

func TestSelectionsTimeout(t *testing.T) {
	sel := newSelections()
	nonce, ch := sel.open("alice")

	v, ok := sel.wait(context.Background(), nonce, ch, 10*time.Millisecond)
	if ok || v != "" {
		t.Errorf("wait() = %q, %v, want timeout", v, ok)
	}
	if got := sel.deliver(nonce, "alice", "0"); got != expired {
		t.Errorf("deliver after timeout = %v, want expired", got)
	}
}

func TestSelectionsContextCancel(t *testing.T) {
	sel := newSelections()
	nonce, ch := sel.open("alice")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := sel.wait(ctx, nonce, ch, time.Minute); ok {
		t.Error("wait() ok = true after cancel")
	}
}

func TestSelectionTimeout(t *testing.T) {
	tests := []struct {
		cfg  *config.Config
		want time.Duration
	}{
		{nil, 30 * time.Second},
		{&config.Config{}, 30 * time.Second},
		{&config.Config{SelectionTimeout: time.Minute}, time.Minute},
	}
	for _, tt := range tests {
		h := &CommandHandler{cfg: tt.cfg}
		if got := h.selectionTimeout(); got != tt.want {
			t.Errorf("selectionTimeout() = %v, want %v", got, tt.want)
		}
	}
	if got := ui.NoSelection(defaultSelectionTimeout); !strings.Contains(got, "30 seconds") {
		t.Errorf("default timeout message = %q", got)
	}
}

func videos(n int) []resolver.Video {
	out := make([]resolver.Video, n)
	for i := range out {
		out[i] = resolver.Video{Title: fmt.Sprintf("Video %d", i), URL: fmt.Sprintf("https://youtu.be/%d", i)}
	}
	return out
}

func TestBuildSelectMenu(t *testing.T) {
	vs := videos(8)
	vs[0].Title = strings.Repeat("a", 80)
	vs[1].Title = `"!!!"`

	rows := buildSelectMenu("n1", vs)
	row, ok := rows[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 1 {
		t.Fatalf("components = %#v", rows)
	}
	menu := row.Components[0].(discordgo.SelectMenu)
	if menu.CustomID != "video-select:n1" {
		t.Errorf("CustomID = %q", menu.CustomID)
	}
	if len(menu.Options) != maxChoices {
		t.Fatalf("options = %d, want %d", len(menu.Options), maxChoices)
	}
	if want := strings.Repeat("a", ui.MaxLabel) + "..."; menu.Options[0].Label != want {
		t.Errorf("label[0] = %q, want %q", menu.Options[0].Label, want)
	}
	if menu.Options[1].Label != "Unknown" {
		t.Errorf("label[1] = %q, want Unknown", menu.Options[1].Label)
	}
	if menu.Options[4].Value != "4" {
		t.Errorf("value[4] = %q, want 4", menu.Options[4].Value)
	}
}

func TestPickVideo(t *testing.T) {
	vs := videos(7)
	tests := []struct {
		value string
		want  int
	}{
		{"0", 0},
		{"4", 4},
		{"5", -1},
		{"-1", -1},
		{"x", -1},
	}
	for _, tt := range tests {
		v, ok := pickVideo(vs, tt.value)
		if ok != (tt.want >= 0) {
			t.Errorf("pickVideo(%q) ok = %v, want %v", tt.value, ok, tt.want >= 0)
			continue
		}
		if ok && v.URL != vs[tt.want].URL {
			t.Errorf("pickVideo(%q) = %v, want %v", tt.value, v, vs[tt.want])
		}
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{player.ErrNoQueue, ui.MsgNoQueue},
		{player.ErrQueueEmpty, ui.MsgQueueEmpty},
		{fmt.Errorf("enqueue: %w", player.ErrDisconnecting), ui.MsgDisconnecting},
		{faults.UserInputf("resolve", "Invalid URL"), "❌ Invalid URL"},
		{faults.New(faults.Resolve, "yt-dlp", "boom"), "❌ Could not look that up. Try again later."},
		{faults.Wrap(faults.Connection, "voice join", errors.New("timeout")), "❌ Could not join your voice channel."},
		{errors.New("weird"), "❌ Something went wrong."},
	}
	for _, tt := range tests {
		if got := errorMessage(tt.err); got != tt.want {
			t.Errorf("errorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestResultMessage(t *testing.T) {
	song := queue.Song{Title: "Song A"}
	if got := resultMessage(player.Result{Song: song, Started: true}); got != ui.NowPlaying("Song A") {
		t.Errorf("started = %q", got)
	}
	if got := resultMessage(player.Result{Song: song, Position: 2}); got != ui.AddedToQueue("Song A") {
		t.Errorf("queued = %q", got)
	}
}

func strOpt(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func intOpt(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

func TestParseConfigOptions(t *testing.T) {
	c, err := parseConfigOptions(nil)
	if err != nil || !c.empty() {
		t.Errorf("no options = %+v, %v, want empty", c, err)
	}

	c, err = parseConfigOptions([]*discordgo.ApplicationCommandInteractionDataOption{
		strOpt("idle-timeout", "1m30s"),
		intOpt("volume", 80),
	})
	if err != nil {
		t.Fatalf("parseConfigOptions() error = %v", err)
	}
	set := &repository.Settings{IdleTimeoutSeconds: 60, VolumePercent: 50}
	c.apply(set)
	if set.IdleTimeoutSeconds != 90 || set.VolumePercent != 80 {
		t.Errorf("applied = %+v, want 90s at 80%%", set)
	}

	if _, err := parseConfigOptions([]*discordgo.ApplicationCommandInteractionDataOption{strOpt("idle-timeout", "soon")}); !faults.Is(err, faults.UserInput) {
		t.Errorf("bad duration error = %v, want user input fault", err)
	}
}

func TestCommandDefinitions(t *testing.T) {
	want := []string{"play", "skip", "stop", "queue", "clean", "config"}
	cmds := commandDefinitions()
	if len(cmds) != len(want) {
		t.Fatalf("commands = %d, want %d", len(cmds), len(want))
	}
	for i, c := range cmds {
		if c.Name != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, c.Name, want[i])
		}
	}
	play := cmds[0]
	if len(play.Options) != 2 || play.Options[0].Name != "url" || play.Options[1].Name != "query" {
		t.Errorf("play subcommands = %v", play.Options)
	}
}

type fakeSender struct {
	channel, content string
	err              error
}

func (f *fakeSender) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel, f.content = channelID, content
	return &discordgo.Message{}, f.err
}

func TestChannelNotifier(t *testing.T) {
	fs := &fakeSender{}
	ChannelNotifier{S: fs}.Notify("c1", ui.MsgInactive)
	if fs.channel != "c1" || fs.content != ui.MsgInactive {
		t.Errorf("sent %q to %q", fs.content, fs.channel)
	}

	// errors are only logged
	ChannelNotifier{S: &fakeSender{err: errors.New("403")}}.Notify("c1", "x")
}

func TestUserIDOf(t *testing.T) {
	member := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "m"}}}}
	direct := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u"}}}
	tests := []struct {
		in   *discordgo.InteractionCreate
		want string
	}{
		{nil, ""},
		{member, "m"},
		{direct, "u"},
	}
	for _, tt := range tests {
		if got := userIDOf(tt.in); got != tt.want {
			t.Errorf("userIDOf() = %q, want %q", got, tt.want)
		}
	}
}
