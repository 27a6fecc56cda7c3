// Package board maintains a game's task dashboard: one message per
// status bucket, edited in place and recreated only when a message has
// gone missing.
package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"crewboard/internal/domain"
	"crewboard/internal/notify"
	"crewboard/internal/repo"
)

// tasksPerBucket caps how many tasks render per status message; the
// remainder collapses into an overflow line.
const tasksPerBucket = 10

var bucketTitles = map[string]string{
	domain.StatusTodo:     "📝 To Do",
	domain.StatusProgress: "🔧 In Progress",
	domain.StatusReview:   "👀 In Review",
	domain.StatusDone:     "✅ Done",
}

type Board struct {
	Repo      repo.Repo
	Messenger notify.Messenger
	Logger    *log.Logger
}

// Refresh rebuilds the status messages for a game in channelID. It is
// idempotent: repeated calls with unchanged tasks edit the same four
// messages and leave the stored board record identical.
func (b Board) Refresh(ctx context.Context, acronym, channelID string) error {
	tasks, err := b.Repo.ListBoardTasks(ctx, acronym)
	if err != nil {
		return fmt.Errorf("list board tasks: %w", err)
	}
	buckets := Partition(tasks)

	stored, err := b.Repo.GetBoard(ctx, acronym)
	var existing []string
	if err == nil && stored.ChannelID == channelID {
		existing = stored.MessageIDs
	} else if err != nil && err != repo.ErrNotFound {
		return err
	}

	messageIDs := make([]string, len(domain.BoardStatuses))
	for i, status := range domain.BoardStatuses {
		msg := RenderBucket(status, buckets[status])
		if i < len(existing) && existing[i] != "" {
			err := b.Messenger.Edit(ctx, channelID, existing[i], msg)
			if err == nil {
				messageIDs[i] = existing[i]
				continue
			}
			if !errors.Is(err, notify.ErrMessageNotFound) {
				return fmt.Errorf("edit board message %s: %w", existing[i], err)
			}
			b.logf("board %s: message %s gone, recreating", acronym, existing[i])
		}
		id, err := b.Messenger.Send(ctx, channelID, msg)
		if err != nil {
			return fmt.Errorf("send board message: %w", err)
		}
		messageIDs[i] = id
	}

	return b.Repo.UpsertBoard(ctx, domain.Board{
		GameAcronym: acronym,
		ChannelID:   channelID,
		MessageIDs:  messageIDs,
	})
}

// Partition groups non-cancelled tasks by status in board order.
func Partition(tasks []domain.Task) map[string][]domain.Task {
	buckets := make(map[string][]domain.Task, len(domain.BoardStatuses))
	for _, t := range tasks {
		if t.Status == domain.StatusCancelled {
			continue
		}
		buckets[t.Status] = append(buckets[t.Status], t)
	}
	return buckets
}

// RenderBucket renders one status bucket, capping at tasksPerBucket
// with an overflow note.
func RenderBucket(status string, tasks []domain.Task) notify.Message {
	title := bucketTitles[status]
	if title == "" {
		title = status
	}
	if len(tasks) == 0 {
		return notify.Message{Title: title, Body: "*No tasks*"}
	}
	var lines []string
	shown := tasks
	if len(shown) > tasksPerBucket {
		shown = shown[:tasksPerBucket]
	}
	for _, t := range shown {
		lines = append(lines, taskLine(t))
	}
	if overflow := len(tasks) - len(shown); overflow > 0 {
		lines = append(lines, fmt.Sprintf("*…and %d more*", overflow))
	}
	return notify.Message{
		Title:  title,
		Body:   strings.Join(lines, "\n"),
		Footer: fmt.Sprintf("%d task(s)", len(tasks)),
	}
}

func taskLine(t domain.Task) string {
	line := fmt.Sprintf("`#%d` %s", t.ID, t.Title)
	if t.Priority != nil {
		line += " [" + *t.Priority + "]"
	}
	if t.Deadline != nil {
		line += " 📅 " + *t.Deadline
	}
	return line
}

func (b Board) logf(format string, args ...any) {
	if b.Logger != nil {
		b.Logger.Printf(format, args...)
	}
}
