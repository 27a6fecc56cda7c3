package discord

import (
	"context"
	"errors"
	"log"

	"crewboard/internal/board"
	"crewboard/internal/notify"
	"crewboard/internal/repo"
)

// Presenter keeps the chat-side views of a task in sync with the
// database: the thread header, the control panel, and the game board.
type Presenter struct {
	Client Client
	Repo   repo.Repo
	Board  board.Board
	Logger *log.Logger
}

func (p Presenter) RefreshTask(ctx context.Context, taskID int64) error {
	t, err := p.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.TargetChannelID == nil {
		return nil
	}
	assignees, err := p.Repo.ListAssignees(ctx, taskID)
	if err != nil {
		return err
	}

	headerChannel := *t.TargetChannelID
	if t.ThreadID != nil {
		headerChannel = *t.ThreadID
	}
	headerID, err := p.upsertMessage(ctx, headerChannel, t.HeaderMessageID, RenderHeader(t, assignees))
	if err != nil {
		return err
	}
	controlID, err := p.upsertMessage(ctx, headerChannel, t.ControlMessageID, RenderControlPanel(t, assignees))
	if err != nil {
		return err
	}
	return p.Repo.UpdateTaskMessageRefs(ctx, taskID, nil, nil, &headerID, &controlID)
}

func (p Presenter) upsertMessage(ctx context.Context, channelID string, messageID *string, msg notify.Message) (string, error) {
	if messageID != nil && *messageID != "" {
		err := p.Client.Edit(ctx, channelID, *messageID, msg)
		if err == nil {
			return *messageID, nil
		}
		if !errors.Is(err, notify.ErrMessageNotFound) {
			return "", err
		}
	}
	return p.Client.Send(ctx, channelID, msg)
}

func (p Presenter) RefreshBoard(ctx context.Context, gameAcronym string) error {
	b, err := p.Repo.GetBoard(ctx, gameAcronym)
	if err == repo.ErrNotFound {
		// No board provisioned for this game yet.
		return nil
	}
	if err != nil {
		return err
	}
	return p.Board.Refresh(ctx, gameAcronym, b.ChannelID)
}

func (p Presenter) ArchiveThread(ctx context.Context, threadID string) error {
	return p.Client.ArchiveThread(ctx, threadID)
}

func (p Presenter) RemoveTaskArtifacts(ctx context.Context, a notify.Artifacts) error {
	if a.ThreadID != "" {
		if err := p.Client.DeleteChannel(ctx, a.ThreadID); err != nil {
			return err
		}
		// Header and control panel lived inside the thread.
		return nil
	}
	if a.ChannelID == "" {
		return nil
	}
	if a.HeaderMessageID != "" {
		if err := p.Client.DeleteMessage(ctx, a.ChannelID, a.HeaderMessageID); err != nil {
			return err
		}
	}
	if a.ControlMessageID != "" {
		if err := p.Client.DeleteMessage(ctx, a.ChannelID, a.ControlMessageID); err != nil {
			return err
		}
	}
	return nil
}
