package discord

import (
	"strings"
	"testing"

	"crewboard/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestRenderHeader(t *testing.T) {
	task := domain.Task{
		ID: 7, GameAcronym: "SaB", Title: "Build the lobby",
		Description: "Spawn area and matchmaking",
		Priority:    strPtr("High"),
		Deadline:    strPtr("2026-09-01"),
	}
	assignees := []domain.Assignee{
		{UserID: "u1", IsPrimary: true},
		{UserID: "u2"},
	}
	msg := RenderHeader(task, assignees)
	if msg.Title != "#7 Build the lobby" {
		t.Fatalf("title = %q", msg.Title)
	}
	for _, want := range []string{"Spawn area", "High", "2026-09-01", "<@u1> 👑", "<@u2>"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestRenderControlPanelShowsTallyOnlyForSharedReview(t *testing.T) {
	task := domain.Task{ID: 7, Status: domain.StatusReview}
	shared := []domain.Assignee{
		{UserID: "u1", HasApproved: true},
		{UserID: "u2"},
		{UserID: "u3"},
	}
	msg := RenderControlPanel(task, shared)
	if !strings.Contains(msg.Body, "Approvals:** 1/3") {
		t.Fatalf("shared review should show tally:\n%s", msg.Body)
	}

	owned := []domain.Assignee{{UserID: "u1", IsPrimary: true}, {UserID: "u2"}}
	msg = RenderControlPanel(task, owned)
	if strings.Contains(msg.Body, "Approvals") {
		t.Fatalf("primary-owned task should not show a tally:\n%s", msg.Body)
	}

	task.Status = domain.StatusProgress
	msg = RenderControlPanel(task, shared)
	if strings.Contains(msg.Body, "Approvals") {
		t.Fatalf("non-review task should not show a tally:\n%s", msg.Body)
	}
}
