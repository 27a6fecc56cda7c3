// Package reminder periodically sweeps for tasks that need a nudge:
// deadlines inside the next day and in-progress work nobody has touched
// for three days.
package reminder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"crewboard/internal/domain"
	"crewboard/internal/notify"
	"crewboard/internal/repo"
)

const (
	// DefaultInterval is how often the sweep runs.
	DefaultInterval = time.Hour
	// dueWindow is how far ahead deadline reminders look.
	dueWindow = 24 * time.Hour
	// stagnantAfter is how long an in-progress task may sit untouched.
	stagnantAfter = 72 * time.Hour
)

// Reminder kinds in the delivery log.
const (
	kindDue      = "due"
	kindStagnant = "stagnant"
)

type Scheduler struct {
	Repo     repo.Repo
	Notifier notify.Notifier
	Interval time.Duration
	Logger   *log.Logger
	Now      func() time.Time
}

// Run sweeps once per interval until the context is cancelled. A failed
// sweep is logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := s.Sweep(ctx)
			if err != nil {
				s.logf("sweep: %v", err)
				continue
			}
			if sent > 0 {
				s.logf("sweep: sent %d reminder(s)", sent)
			}
		}
	}
}

// Sweep runs one reminder pass and returns how many notifications were
// delivered. Delivery failures are logged per task and never abort the
// pass.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()

	due, err := s.Repo.ListDueSoon(ctx, now.Format("2006-01-02"), now.Add(dueWindow).Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("list due tasks: %w", err)
	}
	stagnant, err := s.Repo.ListStagnant(ctx, now.Add(-stagnantAfter).Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("list stagnant tasks: %w", err)
	}

	sent := 0
	for _, t := range due {
		deadline := ""
		if t.Deadline != nil {
			deadline = *t.Deadline
		}
		text := fmt.Sprintf("⏰ Task `#%d` **%s** is due %s.", t.ID, t.Title, deadline)
		if s.deliver(ctx, t, kindDue, deadline, text) {
			sent++
		}
	}
	for _, t := range stagnant {
		text := fmt.Sprintf("💤 Task `#%d` **%s** has been in progress for a while. Still on it?", t.ID, t.Title)
		if s.deliver(ctx, t, kindStagnant, t.UpdatedAt, text) {
			sent++
		}
	}
	return sent, nil
}

// deliver sends one reminder unless an identical one was already
// logged. The due key pins identity: the deadline for due reminders,
// the updated_at stamp for check-ins, so a re-touched task can nudge
// again later.
func (s *Scheduler) deliver(ctx context.Context, t domain.Task, kind, dueKey, text string) bool {
	already, err := s.Repo.ReminderSent(ctx, t.ID, kind, dueKey)
	if err != nil {
		s.logf("task %d: check reminder log: %v", t.ID, err)
		return false
	}
	if already {
		return false
	}
	target := ""
	if t.ThreadID != nil {
		target = *t.ThreadID
	} else if t.TargetChannelID != nil {
		target = *t.TargetChannelID
	}
	if target == "" {
		return false
	}
	mentions, err := s.mentions(ctx, t)
	if err != nil {
		s.logf("task %d: resolve assignees: %v", t.ID, err)
		return false
	}
	if err := s.Notifier.Notify(ctx, target, text, mentions); err != nil {
		s.logf("task %d: deliver reminder: %v", t.ID, err)
		return false
	}
	reminderID := uuid.NewString()
	if err := s.Repo.LogReminder(ctx, reminderID, t.ID, kind, dueKey, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.logf("task %d: log reminder %s: %v", t.ID, reminderID, err)
	}
	return true
}

// mentions returns the assignee set, falling back to the legacy
// single-assignee column for rows predating the backfill.
func (s *Scheduler) mentions(ctx context.Context, t domain.Task) ([]string, error) {
	assignees, err := s.Repo.ListAssignees(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, a := range assignees {
		ids = append(ids, a.UserID)
	}
	if len(ids) == 0 {
		legacy, err := s.Repo.LegacyAssigneeID(ctx, t.ID)
		if err != nil && err != repo.ErrNotFound {
			return nil, err
		}
		if legacy = strings.TrimSpace(legacy); legacy != "" {
			ids = append(ids, legacy)
		}
	}
	return ids, nil
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
