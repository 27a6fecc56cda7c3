package discord

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"crewboard/internal/notify"
)

// Client adapts a discordgo session to the notify contracts. Rendered
// messages go out as embeds; reminders as plain content with mentions.
type Client struct {
	Session *discordgo.Session
}

func (c Client) Send(ctx context.Context, channelID string, msg notify.Message) (string, error) {
	m, err := c.Session.ChannelMessageSendEmbed(channelID, embedFrom(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (c Client) Edit(ctx context.Context, channelID, messageID string, msg notify.Message) error {
	_, err := c.Session.ChannelMessageEditEmbed(channelID, messageID, embedFrom(msg), discordgo.WithContext(ctx))
	if isUnknownEntity(err) {
		return notify.ErrMessageNotFound
	}
	return err
}

func (c Client) Notify(ctx context.Context, targetID, text string, mentionUserIDs []string) error {
	var b strings.Builder
	for _, id := range mentionUserIDs {
		b.WriteString("<@" + id + "> ")
	}
	b.WriteString(text)
	_, err := c.Session.ChannelMessageSend(targetID, b.String(), discordgo.WithContext(ctx))
	return err
}

// ArchiveThread archives and locks a finished task thread.
func (c Client) ArchiveThread(ctx context.Context, threadID string) error {
	yes := true
	_, err := c.Session.ChannelEditComplex(threadID, &discordgo.ChannelEdit{
		Archived: &yes,
		Locked:   &yes,
	}, discordgo.WithContext(ctx))
	return err
}

func (c Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := c.Session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if isUnknownEntity(err) {
		return nil
	}
	return err
}

func (c Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.Session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	if isUnknownEntity(err) {
		return nil
	}
	return err
}

func embedFrom(msg notify.Message) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Body,
	}
	if msg.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	return e
}

func isUnknownEntity(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Message == nil {
		return false
	}
	switch rest.Message.Code {
	case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
		return true
	}
	return false
}
