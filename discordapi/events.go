package discordapi

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/lunebot/tempchan/command"
	"github.com/lunebot/tempchan/telemetry"
)

// RegisterHandlers wires gateway events into the command facade. Messages
// from the bot itself and events outside the managed guild are dropped; the
// facade silently ignores channels it does not track.
func (c *Client) RegisterHandlers(facade *command.Facade) {
	c.s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.GuildID != c.guildID || m.Author == nil || m.Author.Bot {
			return
		}
		facade.OnMessage(m.ChannelID)
	})

	c.s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if r.GuildID != c.guildID || r.UserID == c.BotUserID() {
			return
		}
		ctx := telemetry.WithCorrelation(context.Background(), uuid.New().String())
		resp := facade.OnReaction(ctx, r.ChannelID, r.MessageID, r.UserID, c.isAdmin(r.UserID, r.ChannelID), r.Emoji.Name)
		if resp == "" {
			return
		}
		if _, err := c.SendMessage(ctx, r.ChannelID, resp); err != nil {
			slog.Warn("reaction reply failed",
				slog.String("channel_id", r.ChannelID),
				slog.Any("err", err))
		}
	})
}

// isAdmin checks the reacting user's effective channel permissions. Failure
// to resolve permissions is treated as non-admin.
func (c *Client) isAdmin(userID, channelID string) bool {
	bits, err := c.s.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false
	}
	return bits&discordgo.PermissionAdministrator != 0
}
