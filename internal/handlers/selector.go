package handlers

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/sonroyaalmerol/cuebot/internal/player"
	"github.com/sonroyaalmerol/cuebot/internal/resolver"
	"github.com/sonroyaalmerol/cuebot/internal/ui"
)

const (
	selectPrefix = "video-select:"
	maxChoices   = 5

	defaultSelectionTimeout = 30 * time.Second
)

type deliverResult int

const (
	delivered deliverResult = iota
	notYours
	expired
)

type selection struct {
	user string
	ch   chan string
}

// selections tracks open select menus by nonce. Only the user who opened a
// menu can answer it, and each menu takes at most one answer.
type selections struct {
	mu      sync.Mutex
	pending map[string]*selection
}

func newSelections() *selections {
	return &selections{pending: make(map[string]*selection)}
}

func (s *selections) open(user string) (string, <-chan string) {
	nonce := uuid.NewString()
	sel := &selection{user: user, ch: make(chan string, 1)}
	s.mu.Lock()
	s.pending[nonce] = sel
	s.mu.Unlock()
	return nonce, sel.ch
}

// close forgets nonce and reports whether it was still unanswered.
func (s *selections) close(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[nonce]
	delete(s.pending, nonce)
	return ok
}

func (s *selections) deliver(nonce, user, value string) deliverResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.pending[nonce]
	if !ok {
		return expired
	}
	if sel.user != user {
		return notYours
	}
	delete(s.pending, nonce)
	sel.ch <- value
	return delivered
}

// wait blocks until the menu is answered, timeout passes or ctx ends.
func (s *selections) wait(ctx context.Context, nonce string, ch <-chan string, timeout time.Duration) (string, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case v := <-ch:
		return v, true
	case <-t.C:
	case <-ctx.Done():
	}
	if !s.close(nonce) {
		// answered while we were giving up
		return <-ch, true
	}
	return "", false
}

func buildSelectMenu(nonce string, videos []resolver.Video) []discordgo.MessageComponent {
	if len(videos) > maxChoices {
		videos = videos[:maxChoices]
	}
	opts := make([]discordgo.SelectMenuOption, len(videos))
	for n, v := range videos {
		opts[n] = discordgo.SelectMenuOption{
			Label: ui.Label(v.Title),
			Value: strconv.Itoa(n),
		}
		if v.Uploader != "" {
			opts[n].Description = ui.Truncate(v.Uploader, ui.MaxLabel)
		}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    selectPrefix + nonce,
					Placeholder: ui.SelectPlaceholder,
					Options:     opts,
				},
			},
		},
	}
}

// pickVideo maps a select menu value back to one of the offered videos.
func pickVideo(videos []resolver.Video, value string) (resolver.Video, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n >= len(videos) || n >= maxChoices {
		return resolver.Video{}, false
	}
	return videos[n], true
}

func (h *CommandHandler) playQuery(s *discordgo.Session, i *discordgo.InteractionCreate, req player.Request) {
	ctx := context.Background()
	videos, err := h.svc.Search(ctx, req.Reference)
	if err != nil {
		h.editReply(s, i, errorMessage(err))
		return
	}
	if len(videos) == 0 {
		h.editReply(s, i, ui.Failed("No results."))
		return
	}

	nonce, ch := h.sel.open(req.RequestedBy)
	prompt := ui.MsgSelectPrompt
	components := buildSelectMenu(nonce, videos)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:    &prompt,
		Components: &components,
	}); err != nil {
		h.sel.close(nonce)
		h.log.Warn("send select menu failed", "guildID", req.GuildID, "err", err)
		return
	}

	timeout := h.selectionTimeout()
	value, ok := h.sel.wait(ctx, nonce, ch, timeout)
	if !ok {
		msg := ui.NoSelection(timeout)
		none := []discordgo.MessageComponent{}
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content:    &msg,
			Components: &none,
		}); err != nil {
			h.log.Debug("clear select menu failed", "guildID", req.GuildID, "err", err)
		}
		return
	}

	v, ok := pickVideo(videos, value)
	if !ok {
		h.log.Warn("select menu value out of range", "guildID", req.GuildID, "value", value)
		return
	}
	req.Reference = v.URL
	res, err := h.svc.EnqueueVideo(ctx, req, v)
	msg := resultMessage(res)
	if err != nil {
		msg = errorMessage(err)
	} else {
		h.log.Info("cmd play query", "guildID", req.GuildID, "userID", req.RequestedBy, "title", res.Song.Title, "started", res.Started)
	}
	if _, err := s.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{Content: msg}); err != nil {
		h.log.Warn("followup failed", "guildID", req.GuildID, "err", err)
	}
}

func (h *CommandHandler) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	nonce, ok := strings.CutPrefix(data.CustomID, selectPrefix)
	if !ok || len(data.Values) == 0 {
		return
	}

	switch h.sel.deliver(nonce, userIDOf(i), data.Values[0]) {
	case notYours:
		h.reply(s, i, ui.MsgNotYourMenu, true)
	case expired:
		h.updateMenu(s, i, ui.NoSelection(h.selectionTimeout()))
	case delivered:
		h.updateMenu(s, i, ui.MsgSelected)
	}
}

func (h *CommandHandler) selectionTimeout() time.Duration {
	if h.cfg == nil || h.cfg.SelectionTimeout <= 0 {
		return defaultSelectionTimeout
	}
	return h.cfg.SelectionTimeout
}

// updateMenu answers a component interaction by replacing the menu message
// with content and no components.
func (h *CommandHandler) updateMenu(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}); err != nil {
		h.log.Warn("update select menu failed", "guildID", i.GuildID, "err", err)
	}
}
