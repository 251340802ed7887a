// Package discordapi adapts the Discord gateway to the platform capability
// interface the core consumes. All Discord specifics (permission overwrite
// encoding, category resolution, REST error shapes) stay behind this package;
// command registration and parsing belong to whoever hosts the bot and are
// not handled here.
package discordapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/lunebot/tempchan/perms"
	"github.com/lunebot/tempchan/platform"
)

type Client struct {
	s            *discordgo.Session
	guildID      string
	categoryName string

	mu         sync.Mutex
	categoryID string
}

// Connect opens a gateway session scoped to one guild. The session closes
// when ctx is canceled.
func Connect(ctx context.Context, token, guildID, categoryName string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord gateway open: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := s.Close(); err != nil {
			slog.Error("discord gateway close error", slog.Any("err", err))
		}
	}()
	return &Client{s: s, guildID: guildID, categoryName: categoryName}, nil
}

func (c *Client) BotUserID() string {
	if c.s.State != nil && c.s.State.User != nil {
		return c.s.State.User.ID
	}
	return ""
}

// Ready reports whether the gateway session has identified.
func (c *Client) Ready() bool {
	return c.s.State != nil && c.s.State.User != nil
}

// ensureCategory resolves (or creates) the parent category for temp channels.
func (c *Client) ensureCategory(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.categoryID != "" {
		return c.categoryID, nil
	}
	channels, err := c.s.GuildChannels(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list guild channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == c.categoryName {
			c.categoryID = ch.ID
			return c.categoryID, nil
		}
	}
	cat, err := c.s.GuildChannelCreate(c.guildID, c.categoryName, discordgo.ChannelTypeGuildCategory, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create category: %w", err)
	}
	c.categoryID = cat.ID
	return c.categoryID, nil
}

func (c *Client) CreateChannel(ctx context.Context, name, topic string, grants perms.GrantSet) (string, error) {
	parentID, err := c.ensureCategory(ctx)
	if err != nil {
		return "", err
	}
	ch, err := c.s.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		ParentID:             parentID,
		PermissionOverwrites: c.toOverwrites(grants),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create channel: %w", err)
	}
	return ch.ID, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := c.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return platform.ErrNotFound
		}
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

func (c *Client) RenameChannel(ctx context.Context, channelID, newName string) error {
	_, err := c.s.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: newName}, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return platform.ErrNotFound
		}
		return fmt.Errorf("rename channel: %w", err)
	}
	return nil
}

func (c *Client) ApplyGrants(ctx context.Context, channelID string, delta perms.GrantDelta) error {
	for _, g := range delta.Set {
		id, kind := c.overwriteTarget(g.Target)
		if err := c.s.ChannelPermissionSet(channelID, id, kind, permissionBits(g.Allow), permissionBits(g.Deny), discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("set overwrite for %s: %w", id, err)
		}
	}
	for _, t := range delta.Clear {
		id, _ := c.overwriteTarget(t)
		if err := c.s.ChannelPermissionDelete(channelID, id, discordgo.WithContext(ctx)); err != nil && !isNotFound(err) {
			return fmt.Errorf("clear overwrite for %s: %w", id, err)
		}
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	msg, err := c.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return "", platform.ErrNotFound
		}
		return "", fmt.Errorf("send message: %w", err)
	}
	return msg.ID, nil
}

func (c *Client) AddReactions(ctx context.Context, channelID, messageID string, emojis []string) error {
	for _, emoji := range emojis {
		if err := c.s.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("add reaction %s: %w", emoji, err)
		}
	}
	return nil
}

// overwriteTarget maps a planner target onto a Discord overwrite id/type. The
// everyone role shares its id with the guild.
func (c *Client) overwriteTarget(t perms.Target) (string, discordgo.PermissionOverwriteType) {
	if t == perms.Everyone {
		return c.guildID, discordgo.PermissionOverwriteTypeRole
	}
	return t.UserID, discordgo.PermissionOverwriteTypeMember
}

func (c *Client) toOverwrites(grants perms.GrantSet) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(grants))
	for _, g := range grants {
		id, kind := c.overwriteTarget(g.Target)
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  kind,
			Allow: permissionBits(g.Allow),
			Deny:  permissionBits(g.Deny),
		})
	}
	return out
}

func permissionBits(p perms.Permission) int64 {
	var bits int64
	if p&perms.View != 0 {
		bits |= discordgo.PermissionViewChannel
	}
	if p&perms.Send != 0 {
		bits |= discordgo.PermissionSendMessages
	}
	if p&perms.ManageMessages != 0 {
		bits |= discordgo.PermissionManageMessages
	}
	if p&perms.ManageChannel != 0 {
		bits |= discordgo.PermissionManageChannels
	}
	return bits
}

func isNotFound(err error) bool {
	if restErr, ok := err.(*discordgo.RESTError); ok {
		return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

var _ platform.Client = (*Client)(nil)
