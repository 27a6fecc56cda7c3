// Package notify defines the contract between the lifecycle engine and
// whatever renders it to a chat platform. The engine and board code
// depend only on these interfaces; the Discord implementation lives in
// internal/discord.
package notify

import (
	"context"
	"errors"
)

// ErrMessageNotFound is returned by Edit when the target message was
// deleted out from under us; callers recreate instead.
var ErrMessageNotFound = errors.New("message not found")

// Message is one rendered dashboard or panel message.
type Message struct {
	Title  string
	Body   string
	Footer string
}

// Messenger sends and edits rendered messages in a channel.
type Messenger interface {
	Send(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	Edit(ctx context.Context, channelID, messageID string, msg Message) error
}

// Notifier delivers a reminder into a channel or thread, mentioning the
// given user ids.
type Notifier interface {
	Notify(ctx context.Context, targetID, text string, mentionUserIDs []string) error
}

// Artifacts are the chat-side remnants of a task, captured before the
// row is deleted.
type Artifacts struct {
	ChannelID        string
	ThreadID         string
	HeaderMessageID  string
	ControlMessageID string
}

// Presenter refreshes a task's presentation artifacts after a committed
// state change. Implementations are best-effort: the engine logs and
// swallows their errors, it never rolls back on them.
type Presenter interface {
	RefreshTask(ctx context.Context, taskID int64) error
	RefreshBoard(ctx context.Context, gameAcronym string) error
	ArchiveThread(ctx context.Context, threadID string) error
	RemoveTaskArtifacts(ctx context.Context, a Artifacts) error
}
