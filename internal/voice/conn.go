package voice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrSendTimeout means the connection did not take a packet in time. The
// packet is dropped.
var ErrSendTimeout = errors.New("voice send timeout")

const (
	sendTimeout       = 200 * time.Millisecond
	disconnectTimeout = 3 * time.Second
)

// Conn is a live voice connection.
type Conn interface {
	ChannelID() string
	Speaking(on bool) error
	// Send hands one Opus packet to the connection.
	Send(ctx context.Context, pkt []byte) error
	Close(ctx context.Context) error
}

// Dialer opens voice connections.
type Dialer interface {
	Dial(ctx context.Context, guildID, channelID string) (Conn, error)
}

// Joiner is the part of *discordgo.Session used to join a voice channel.
type Joiner interface {
	ChannelVoiceJoin(gID, cID string, mute, deaf bool) (*discordgo.VoiceConnection, error)
}

type DiscordDialer struct {
	S   Joiner
	Log *slog.Logger
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Dial joins the channel. discordgo's join is not cancelable, so when ctx
// ends first the late connection is disconnected once it arrives.
func (d DiscordDialer) Dial(ctx context.Context, guildID, channelID string) (Conn, error) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	done := make(chan joinResult, 1)
	go func() {
		vc, err := d.S.ChannelVoiceJoin(guildID, channelID, false, true)
		done <- joinResult{vc, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		c := &discordConn{vc: r.vc, channelID: channelID, log: log}
		c.ensureChannels()
		return c, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil && r.vc != nil {
				c := &discordConn{vc: r.vc, channelID: channelID, log: log}
				if err := c.Close(context.Background()); err != nil {
					log.Warn("disconnect abandoned voice join", "guildID", guildID, "err", err)
				}
			}
		}()
		return nil, ctx.Err()
	}
}

type discordConn struct {
	vc        *discordgo.VoiceConnection
	channelID string
	log       *slog.Logger
}

// ensureChannels keeps Kill() from closing nil channels.
func (c *discordConn) ensureChannels() {
	if c.vc.OpusSend == nil {
		c.vc.OpusSend = make(chan []byte, 2)
	}
	if c.vc.OpusRecv == nil {
		c.vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}
}

func (c *discordConn) ChannelID() string { return c.channelID }

func (c *discordConn) Speaking(on bool) error { return c.vc.Speaking(on) }

func (c *discordConn) Send(ctx context.Context, pkt []byte) error {
	t := time.NewTimer(sendTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.vc.OpusSend <- pkt:
		return nil
	case <-t.C:
		return ErrSendTimeout
	}
}

func (c *discordConn) Close(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("voice disconnect panic recovered", "panic", r, "guildID", c.vc.GuildID)
		}
	}()
	c.ensureChannels()

	_ = c.vc.Speaking(false)
	// let queued packets drain
	time.Sleep(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("voice disconnect panic recovered", "panic", r, "guildID", c.vc.GuildID)
				done <- errors.New("voice disconnect panicked")
			}
		}()
		done <- c.vc.Disconnect()
	}()
	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
