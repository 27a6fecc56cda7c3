package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Channel modes.
const (
	ChannelModePerGame = "per_game"
	ChannelModeGlobal  = "global"
)

// Approval modes.
const (
	ApprovalAuto     = "auto"
	ApprovalAll      = "all"
	ApprovalMajority = "majority"
	ApprovalAny      = "any"
)

// Config is the per-guild configuration. It is stored as a JSON blob in
// guild_configs and imported/exported as YAML from the CLI. Channel name
// templates substitute {acronym} with the game acronym.
type Config struct {
	ChannelMode string `yaml:"channel_mode" json:"channel_mode"`

	BoardChannelTemplate     string `yaml:"board_channel_template" json:"board_channel_template"`
	QuestionsChannelTemplate string `yaml:"questions_channel_template" json:"questions_channel_template"`
	LeadsChannelTemplate     string `yaml:"leads_channel_template" json:"leads_channel_template"`

	GlobalBoardChannelID     string `yaml:"global_board_channel_id,omitempty" json:"global_board_channel_id,omitempty"`
	GlobalQuestionsChannelID string `yaml:"global_questions_channel_id,omitempty" json:"global_questions_channel_id,omitempty"`
	GlobalLeadsChannelID     string `yaml:"global_leads_channel_id,omitempty" json:"global_leads_channel_id,omitempty"`

	LeadRoleIDs []string `yaml:"lead_role_ids" json:"lead_role_ids"`

	ApprovalMode      string `yaml:"approval_mode" json:"approval_mode"`
	ApprovalThreshold int    `yaml:"approval_threshold" json:"approval_threshold"`
}

// Default returns the stock configuration applied to guilds that have
// not completed setup.
func Default() *Config {
	return &Config{
		ChannelMode:              ChannelModePerGame,
		BoardChannelTemplate:     "{acronym}-board",
		QuestionsChannelTemplate: "{acronym}-questions",
		LeadsChannelTemplate:     "{acronym}-leads",
		LeadRoleIDs:              []string{},
		ApprovalMode:             ApprovalAuto,
		ApprovalThreshold:        0,
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.ChannelMode {
	case ChannelModePerGame, ChannelModeGlobal:
	default:
		return fmt.Errorf("channel_mode must be %q or %q", ChannelModePerGame, ChannelModeGlobal)
	}
	switch c.ApprovalMode {
	case ApprovalAuto, ApprovalAll, ApprovalMajority, ApprovalAny:
	default:
		return fmt.Errorf("approval_mode must be one of auto, all, majority, any")
	}
	if c.ApprovalThreshold < 0 {
		return fmt.Errorf("approval_threshold must not be negative")
	}
	if c.ChannelMode == ChannelModePerGame {
		if c.BoardChannelTemplate == "" || c.QuestionsChannelTemplate == "" || c.LeadsChannelTemplate == "" {
			return fmt.Errorf("per_game mode requires board, questions and leads channel templates")
		}
	}
	for _, id := range c.LeadRoleIDs {
		if id == "" {
			return fmt.Errorf("lead_role_ids contains an empty id")
		}
	}
	return nil
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromJSON parses the stored blob. A missing or unparsable blob falls
// back to defaults so a half-configured guild still gets working
// approval behavior.
func FromJSON(data []byte) *Config {
	cfg := Default()
	if len(data) == 0 {
		return cfg
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return Default()
	}
	if err := cfg.Validate(); err != nil {
		return Default()
	}
	return cfg
}

// ToYAML renders the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// IsLeadRole reports whether roleID is one of the configured lead roles.
func (c *Config) IsLeadRole(roleID string) bool {
	for _, id := range c.LeadRoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
