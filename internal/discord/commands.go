package discord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"crewboard/internal/board"
	"crewboard/internal/domain"
	"crewboard/internal/engine"
	"crewboard/internal/engine/auth"
	"crewboard/internal/provision"
	"crewboard/internal/repo"
)

// Handler routes slash-command interactions to the engine.
type Handler struct {
	Engine   engine.Engine
	Registry provision.Registry
	Board    board.Board
	Repo     repo.Repo
	Client   Client
	GuildID  string
	Logger   *log.Logger
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	taskID := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionInteger, Name: "task", Description: "Task id", Required: true,
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        "game",
			Description: "Game project management",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "new", Description: "Register a new game",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Game name", Required: true},
					},
				},
			},
		},
		{
			Name:        "task",
			Description: "Task management",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "new", Description: "Create a task",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "game", Description: "Game acronym", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "title", Description: "Task title", Required: true},
						{Type: discordgo.ApplicationCommandOptionUser, Name: "assignee", Description: "First assignee", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Details"},
						{Type: discordgo.ApplicationCommandOptionString, Name: "priority", Description: "Critical, High, Medium or Low"},
						{Type: discordgo.ApplicationCommandOptionString, Name: "deadline", Description: "YYYY-MM-DD"},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "board", Description: "Refresh the game board here",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "game", Description: "Game acronym", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List your tasks",
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "start", Description: "Start work", Options: []*discordgo.ApplicationCommandOption{taskID}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "pause", Description: "Put back to todo", Options: []*discordgo.ApplicationCommandOption{taskID}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "review", Description: "Submit for review", Options: []*discordgo.ApplicationCommandOption{taskID}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "close", Description: "Close a task or record your approval", Options: []*discordgo.ApplicationCommandOption{taskID}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "cancel", Description: "Cancel a task (lead)", Options: []*discordgo.ApplicationCommandOption{taskID}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "delete", Description: "Delete a task (admin)", Options: []*discordgo.ApplicationCommandOption{taskID}},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "eta", Description: "Update the ETA",
					Options: []*discordgo.ApplicationCommandOption{taskID,
						{Type: discordgo.ApplicationCommandOptionString, Name: "value", Description: "Estimate", Required: true}},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "priority", Description: "Update the priority",
					Options: []*discordgo.ApplicationCommandOption{taskID,
						{Type: discordgo.ApplicationCommandOptionString, Name: "value", Description: "Critical, High, Medium or Low", Required: true}},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "assign", Description: "Add an assignee (lead)",
					Options: []*discordgo.ApplicationCommandOption{taskID,
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to add", Required: true}},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "unassign", Description: "Remove an assignee (lead)",
					Options: []*discordgo.ApplicationCommandOption{taskID,
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to remove", Required: true}},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "owner", Description: "Set the primary owner (lead)",
					Options: []*discordgo.ApplicationCommandOption{taskID,
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "New primary owner"}},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "history", Description: "Show the audit trail", Options: []*discordgo.ApplicationCommandOption{taskID}},
			},
		},
	}
}

func (h Handler) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx := context.Background()
	data := i.ApplicationCommandData()
	var reply string
	var err error
	switch data.Name {
	case "game":
		reply, err = h.handleGame(ctx, i, data.Options[0])
	case "task":
		reply, err = h.handleTask(ctx, i, data.Options[0])
	default:
		return
	}
	if err != nil {
		reply = "❌ " + err.Error()
	}
	h.respond(s, i, reply)
}

func (h Handler) handleGame(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	_, actor, err := h.permissions(ctx, i)
	if err != nil {
		return "", err
	}
	switch sub.Name {
	case "new":
		if !actor.CanModerate() {
			return "", auth.PermissionError{Action: "register game", Reason: "lead role required"}
		}
		name := optString(optionMap(sub.Options), "name")
		g, err := h.Registry.RegisterGame(ctx, name, "")
		if err != nil {
			return "", err
		}
		cfg, err := h.Repo.GetGuildConfig(ctx, h.GuildID)
		if err != nil {
			return "", err
		}
		boardCh, questionsCh, leadsCh := provision.ChannelNames(cfg, g.Acronym)
		reply := fmt.Sprintf("Registered **%s** as `%s`.", g.Name, g.Acronym)
		if boardCh != "" {
			reply += fmt.Sprintf(" Channels: #%s #%s #%s", boardCh, questionsCh, leadsCh)
		}
		return reply, nil
	}
	return "", fmt.Errorf("unknown subcommand %s", sub.Name)
}

func (h Handler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil && h.Logger != nil {
		h.Logger.Printf("respond: %v", err)
	}
}

func (h Handler) permissions(ctx context.Context, i *discordgo.InteractionCreate) (string, auth.Permissions, error) {
	member := i.Member
	if member == nil || member.User == nil {
		return "", auth.Permissions{}, fmt.Errorf("guild member required")
	}
	cfg, err := h.Repo.GetGuildConfig(ctx, h.GuildID)
	if err != nil {
		return "", auth.Permissions{}, err
	}
	admin := member.Permissions&discordgo.PermissionAdministrator != 0
	return member.User.ID, auth.Resolve(cfg, admin, member.Roles), nil
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func optString(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := m[name]; ok {
		return o.StringValue()
	}
	return ""
}

func optInt(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	if o, ok := m[name]; ok {
		return o.IntValue()
	}
	return 0
}

func optUserID(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := m[name]; ok {
		if u, ok := o.Value.(string); ok {
			return u
		}
	}
	return ""
}

func (h Handler) handleTask(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	actorID, actor, err := h.permissions(ctx, i)
	if err != nil {
		return "", err
	}
	opts := optionMap(sub.Options)
	id := optInt(opts, "task")

	switch sub.Name {
	case "new":
		t, err := h.Engine.CreateTask(ctx, engine.TaskCreateOptions{
			GameAcronym: optString(opts, "game"),
			Title:       optString(opts, "title"),
			Description: optString(opts, "description"),
			Priority:    optString(opts, "priority"),
			Deadline:    optString(opts, "deadline"),
			AssigneeIDs: []string{optUserID(opts, "assignee")},
			ActorID:     actorID,
		})
		if err != nil {
			return "", err
		}
		h.attachThread(ctx, t, i.ChannelID)
		return fmt.Sprintf("Created task `#%d` %s", t.ID, t.Title), nil
	case "board":
		acronym := optString(opts, "game")
		if err := h.Board.Refresh(ctx, acronym, i.ChannelID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Board for %s refreshed.", acronym), nil
	case "list":
		tasks, err := h.Engine.ListTasksByAssignee(ctx, actorID)
		if err != nil {
			return "", err
		}
		return formatTaskList(tasks), nil
	case "start":
		t, err := h.Engine.StartTask(ctx, id, actorID, actor)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Task `#%d` started.", t.ID), nil
	case "pause":
		t, err := h.Engine.PauseTask(ctx, id, actorID, actor)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Task `#%d` paused.", t.ID), nil
	case "review":
		t, err := h.Engine.SubmitForReview(ctx, id, actorID, actor)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Task `#%d` submitted for review.", t.ID), nil
	case "close":
		res, err := h.Engine.CloseTask(ctx, id, actorID, actor)
		if err != nil {
			return "", err
		}
		if res.Done {
			return fmt.Sprintf("Task `#%d` completed. 🎉", id), nil
		}
		return fmt.Sprintf("Approval recorded: %d/%d.", res.Approved, res.Required), nil
	case "cancel":
		if _, err := h.Engine.CancelTask(ctx, id, actorID, actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task `#%d` cancelled.", id), nil
	case "delete":
		if err := h.Engine.DeleteTask(ctx, id, actorID, actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task `#%d` deleted.", id), nil
	case "eta":
		if _, err := h.Engine.UpdateETA(ctx, id, actorID, optString(opts, "value"), actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task `#%d` ETA updated.", id), nil
	case "priority":
		if _, err := h.Engine.UpdatePriority(ctx, id, actorID, optString(opts, "value"), actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task `#%d` priority updated.", id), nil
	case "assign":
		if err := h.Engine.AddAssignee(ctx, id, actorID, optUserID(opts, "user"), actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("Assignee added to `#%d`.", id), nil
	case "unassign":
		if err := h.Engine.RemoveAssignee(ctx, id, actorID, optUserID(opts, "user"), actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("Assignee removed from `#%d`.", id), nil
	case "owner":
		userID := optUserID(opts, "user")
		if userID == "" {
			if err := h.Engine.RemovePrimary(ctx, id, actorID, actor); err != nil {
				return "", err
			}
			return fmt.Sprintf("Task `#%d` is back to shared ownership.", id), nil
		}
		if err := h.Engine.SetPrimary(ctx, id, actorID, userID, actor); err != nil {
			return "", err
		}
		return fmt.Sprintf("<@%s> is now the primary owner of `#%d`.", userID, id), nil
	case "history":
		entries, err := h.Repo.ListHistory(ctx, id)
		if err != nil {
			return "", err
		}
		return formatHistory(id, entries), nil
	}
	return "", fmt.Errorf("unknown subcommand %s", sub.Name)
}

// attachThread creates the task's discussion thread in the invoking
// channel. Thread creation is best-effort; the task exists regardless.
func (h Handler) attachThread(ctx context.Context, t domain.Task, channelID string) {
	thread, err := h.Client.Session.ThreadStart(channelID,
		fmt.Sprintf("#%d %s", t.ID, t.Title), discordgo.ChannelTypeGuildPublicThread, 10080,
		discordgo.WithContext(ctx))
	if err != nil {
		h.logf("task %d: create thread: %v", t.ID, err)
		if err := h.Repo.UpdateTaskMessageRefs(ctx, t.ID, &channelID, nil, nil, nil); err != nil {
			h.logf("task %d: store channel ref: %v", t.ID, err)
		}
		return
	}
	if err := h.Repo.UpdateTaskMessageRefs(ctx, t.ID, &channelID, &thread.ID, nil, nil); err != nil {
		h.logf("task %d: store thread ref: %v", t.ID, err)
	}
	if h.Engine.Presenter != nil {
		if err := h.Engine.Presenter.RefreshTask(ctx, t.ID); err != nil {
			h.logf("task %d: initial panels: %v", t.ID, err)
		}
	}
}

func formatTaskList(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "You have no tasks."
	}
	var lines []string
	for _, t := range tasks {
		label := statusLabels[t.Status]
		if label == "" {
			label = t.Status
		}
		lines = append(lines, fmt.Sprintf("`#%d` [%s] %s (%s)", t.ID, t.GameAcronym, t.Title, label))
	}
	return strings.Join(lines, "\n")
}

func formatHistory(id int64, entries []domain.HistoryEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No history for task `#%d`.", id)
	}
	var lines []string
	for _, h := range entries {
		line := fmt.Sprintf("%s %s by <@%s>", h.TS, h.Action, h.ActorID)
		if h.OldValue != nil || h.NewValue != nil {
			line += fmt.Sprintf(" (%s → %s)", derefOr(h.OldValue, "∅"), derefOr(h.NewValue, "∅"))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func (h Handler) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}
