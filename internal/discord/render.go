package discord

import (
	"fmt"
	"strings"

	"crewboard/internal/domain"
	"crewboard/internal/notify"
)

var statusLabels = map[string]string{
	domain.StatusTodo:      "📝 To Do",
	domain.StatusProgress:  "🔧 In Progress",
	domain.StatusReview:    "👀 In Review",
	domain.StatusDone:      "✅ Done",
	domain.StatusCancelled: "🚫 Cancelled",
}

// RenderHeader builds the pinned header message for a task thread.
func RenderHeader(t domain.Task, assignees []domain.Assignee) notify.Message {
	var b strings.Builder
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}
	if t.Priority != nil {
		fmt.Fprintf(&b, "**Priority:** %s\n", *t.Priority)
	}
	if t.Deadline != nil {
		fmt.Fprintf(&b, "**Deadline:** %s\n", *t.Deadline)
	}
	if t.ETA != nil {
		fmt.Fprintf(&b, "**ETA:** %s\n", *t.ETA)
	}
	fmt.Fprintf(&b, "**Assignees:** %s", mentionList(assignees))
	return notify.Message{
		Title:  fmt.Sprintf("#%d %s", t.ID, t.Title),
		Body:   b.String(),
		Footer: t.GameAcronym,
	}
}

// RenderControlPanel builds the status/approval panel for a task.
func RenderControlPanel(t domain.Task, assignees []domain.Assignee) notify.Message {
	label := statusLabels[t.Status]
	if label == "" {
		label = t.Status
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Status:** %s\n", label)
	if t.Status == domain.StatusReview && primaryID(assignees) == "" {
		approved, total := tally(assignees)
		fmt.Fprintf(&b, "**Approvals:** %d/%d\n", approved, total)
	}
	fmt.Fprintf(&b, "**Team:** %s", mentionList(assignees))
	return notify.Message{
		Title:  fmt.Sprintf("Task #%d", t.ID),
		Body:   b.String(),
		Footer: t.GameAcronym,
	}
}

func mentionList(assignees []domain.Assignee) string {
	if len(assignees) == 0 {
		return "*none*"
	}
	var parts []string
	for _, a := range assignees {
		m := "<@" + a.UserID + ">"
		if a.IsPrimary {
			m += " 👑"
		}
		parts = append(parts, m)
	}
	return strings.Join(parts, " ")
}

func primaryID(assignees []domain.Assignee) string {
	for _, a := range assignees {
		if a.IsPrimary {
			return a.UserID
		}
	}
	return ""
}

func tally(assignees []domain.Assignee) (approved, total int) {
	for _, a := range assignees {
		total++
		if a.HasApproved {
			approved++
		}
	}
	return approved, total
}
