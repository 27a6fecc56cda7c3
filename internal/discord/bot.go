package discord

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

// Bot owns the gateway session and the registered slash commands.
type Bot struct {
	Session *discordgo.Session
	Handler Handler
	GuildID string
	Logger  *log.Logger
}

func NewBot(token string, h Handler) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	return &Bot{
		Session: session,
		Handler: h,
		GuildID: h.GuildID,
		Logger:  h.Logger,
	}, nil
}

// Run opens the gateway, registers commands for the guild and blocks
// until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.Session.AddHandler(b.Handler.onInteraction)
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer b.Session.Close()

	appID := b.Session.State.User.ID
	for _, cmd := range commandDefinitions() {
		if _, err := b.Session.ApplicationCommandCreate(appID, b.GuildID, cmd); err != nil {
			return fmt.Errorf("register command %s: %w", cmd.Name, err)
		}
	}
	if b.Logger != nil {
		b.Logger.Printf("connected as %s", b.Session.State.User.Username)
	}
	<-ctx.Done()
	return nil
}
