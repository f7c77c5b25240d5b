package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/feedwatch/feedwatch/internal/core"
)

const (
	discordDescriptionLimit = 4096
	discordFieldLimit       = 1024
)

// DiscordSender is the part of *discordgo.Session the sink uses.
type DiscordSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts notifications as embeds to one channel.
type Discord struct {
	Sender    DiscordSender
	ChannelID string
}

// NewDiscord opens a bot session for token.
func NewDiscord(token, channelID string) (*Discord, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, errors.New("discord channel id is required")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Discord{Sender: session, ChannelID: channelID}, nil
}

// Send posts n to the channel.
func (d *Discord) Send(ctx context.Context, n core.Notification) error {
	if d == nil || d.Sender == nil {
		return errors.New("discord sink is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := d.Sender.ChannelMessageSendEmbed(d.ChannelID, Embed(n), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord embed: %w", err)
	}
	return nil
}

// Embed renders n as a Discord embed.
func Embed(n core.Notification) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		URL:         n.URL,
		Description: truncate(n.Body, discordDescriptionLimit),
		Color:       n.Color,
	}
	if !n.Timestamp.IsZero() {
		embed.Timestamp = n.Timestamp.UTC().Format(time.RFC3339)
	}
	if n.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: n.AuthorName, URL: n.AuthorURL}
	}
	if n.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: n.ImageURL}
	}
	for _, field := range n.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   field.Name,
			Value:  truncate(field.Value, discordFieldLimit),
			Inline: field.Inline,
		})
	}
	return embed
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
