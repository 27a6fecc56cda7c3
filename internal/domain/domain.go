package domain

// Task statuses. done and cancelled are terminal.
const (
	StatusTodo      = "todo"
	StatusProgress  = "progress"
	StatusReview    = "review"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

// BoardStatuses is the fixed bucket order on the task board.
// Cancelled tasks are excluded from the board.
var BoardStatuses = []string{StatusTodo, StatusProgress, StatusReview, StatusDone}

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusDone || status == StatusCancelled
}

// ValidStatus reports whether s is one of the five task statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusProgress, StatusReview, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// History action tags.
const (
	ActionStatusChange   = "status_change"
	ActionETAUpdate      = "eta_update"
	ActionPriorityChange = "priority_change"
	ActionReassign       = "reassign"
	ActionAddAssignee    = "add_assignee"
	ActionRemoveAssignee = "remove_assignee"
	ActionSetPrimary     = "set_primary"
	ActionRemovePrimary  = "remove_primary"
)

// Priorities, highest first.
var Priorities = []string{"Critical", "High", "Medium", "Low"}

// ValidPriority reports whether p is a known priority label.
func ValidPriority(p string) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

type Task struct {
	ID               int64   `json:"id"`
	GameAcronym      string  `json:"game_acronym"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Status           string  `json:"status" enum:"todo,progress,review,done,cancelled"`
	Priority         *string `json:"priority,omitempty" enum:"Critical,High,Medium,Low"`
	Deadline         *string `json:"deadline,omitempty"`
	ETA              *string `json:"eta,omitempty"`
	TargetChannelID  *string `json:"target_channel_id,omitempty"`
	ThreadID         *string `json:"thread_id,omitempty"`
	HeaderMessageID  *string `json:"header_message_id,omitempty"`
	ControlMessageID *string `json:"control_message_id,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

// Assignee is the membership of one user on one task. At most one
// assignee per task carries IsPrimary.
type Assignee struct {
	TaskID      int64  `json:"task_id"`
	UserID      string `json:"user_id"`
	IsPrimary   bool   `json:"is_primary"`
	HasApproved bool   `json:"has_approved"`
	AddedAt     string `json:"added_at" format:"date-time"`
}

// HistoryEntry is one row of the append-only audit trail.
type HistoryEntry struct {
	ID       int64   `json:"id"`
	TaskID   int64   `json:"task_id"`
	ActorID  string  `json:"actor_id"`
	Action   string  `json:"action"`
	OldValue *string `json:"old_value,omitempty"`
	NewValue *string `json:"new_value,omitempty"`
	TS       string  `json:"ts" format:"date-time"`
}

// Board records where a game's dashboard lives: one message per status
// bucket, in BoardStatuses order.
type Board struct {
	GameAcronym string   `json:"game_acronym"`
	ChannelID   string   `json:"channel_id"`
	MessageIDs  []string `json:"message_ids"`
}

// Game is a provisioned project: a named game with a unique acronym and
// the Discord category its channels live under.
type Game struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Acronym    string `json:"acronym"`
	CategoryID string `json:"category_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// GuildConfigRow is the raw per-guild configuration record; the parsed
// form lives in package config.
type GuildConfigRow struct {
	GuildID        string `json:"guild_id"`
	ConfigJSON     string `json:"config_json"`
	SetupCompleted bool   `json:"setup_completed"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}
