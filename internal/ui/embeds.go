package ui

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/cuebot/internal/utils"
)

const (
	colorOK   = 0x006400
	colorInfo = 0x1E90FF
)

// SongLine is what the embeds need to know about a queued song.
type SongLine struct {
	Title       string
	URL         string
	RequestedBy string
}

func songLink(s SongLine) string {
	title := utils.EscapeMd(s.Title)
	if s.URL == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, s.URL)
}

func BuildPlayingEmbed(s SongLine) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("**%s**", songLink(s))
	if s.RequestedBy != "" {
		desc += fmt.Sprintf("\nRequested by: <@%s>", s.RequestedBy)
	}
	return &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: desc,
		Color:       colorOK,
	}
}

// BuildQueueEmbed shows the queue in play order; the first entry is the
// current song.
func BuildQueueEmbed(songs []SongLine) *discordgo.MessageEmbed {
	titles := make([]string, len(songs))
	for i, s := range songs {
		titles[i] = songLink(s)
	}
	return &discordgo.MessageEmbed{
		Description: QueueList(titles),
		Color:       colorOK,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueInfo(len(songs)), Inline: true},
		},
	}
}

func BuildSettingsEmbed(idleTimeoutSec, volumePercent int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Settings",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Idle timeout", Value: utils.PrettyTime(idleTimeoutSec), Inline: true},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", volumePercent), Inline: true},
		},
	}
}

func queueInfo(n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}
