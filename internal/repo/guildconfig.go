package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/domain"
)

// GetGuildConfig parses the stored blob, falling back to defaults for
// guilds that never completed setup or whose blob is unreadable.
func (r Repo) GetGuildConfig(ctx context.Context, guildID string) (*config.Config, error) {
	row, err := r.GetGuildConfigRow(ctx, guildID)
	if err == ErrNotFound {
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return config.FromJSON([]byte(row.ConfigJSON)), nil
}

func (r Repo) GetGuildConfigRow(ctx context.Context, guildID string) (domain.GuildConfigRow, error) {
	var row domain.GuildConfigRow
	err := r.DB.QueryRowContext(ctx, `SELECT guild_id,config_json,setup_completed,updated_at FROM guild_configs WHERE guild_id=?`, guildID).
		Scan(&row.GuildID, &row.ConfigJSON, &row.SetupCompleted, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	return row, err
}

func (r Repo) UpsertGuildConfig(ctx context.Context, guildID string, cfg *config.Config, setupCompleted bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO guild_configs(guild_id,config_json,setup_completed,updated_at) VALUES (?,?,?,?)
ON CONFLICT(guild_id) DO UPDATE SET config_json=excluded.config_json, setup_completed=excluded.setup_completed, updated_at=excluded.updated_at`,
		guildID, string(payload), setupCompleted, now)
	return err
}
