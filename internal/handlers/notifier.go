package handlers

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// MessageSender is the part of *discordgo.Session used for notifications.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelNotifier posts player notifications to a text channel.
type ChannelNotifier struct {
	S   MessageSender
	Log *slog.Logger
}

func (n ChannelNotifier) Notify(channelID, msg string) {
	if _, err := n.S.ChannelMessageSend(channelID, msg); err != nil {
		log := n.Log
		if log == nil {
			log = slog.Default()
		}
		log.Warn("notify failed", "channelID", channelID, "err", err)
	}
}
