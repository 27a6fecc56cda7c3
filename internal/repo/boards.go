package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"crewboard/internal/domain"
)

func (r Repo) GetBoard(ctx context.Context, acronym string) (domain.Board, error) {
	var b domain.Board
	var ids string
	err := r.DB.QueryRowContext(ctx, `SELECT game_acronym,channel_id,message_ids FROM task_boards WHERE game_acronym=? COLLATE NOCASE`, acronym).
		Scan(&b.GameAcronym, &b.ChannelID, &ids)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal([]byte(ids), &b.MessageIDs); err != nil {
		return b, fmt.Errorf("board %s message ids: %w", acronym, err)
	}
	return b, nil
}

func (r Repo) UpsertBoard(ctx context.Context, b domain.Board) error {
	ids, err := json.Marshal(b.MessageIDs)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO task_boards(game_acronym,channel_id,message_ids) VALUES (?,?,?)
ON CONFLICT(game_acronym) DO UPDATE SET channel_id=excluded.channel_id, message_ids=excluded.message_ids`,
		b.GameAcronym, b.ChannelID, string(ids))
	return err
}

func (r Repo) DeleteBoard(ctx context.Context, acronym string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM task_boards WHERE game_acronym=? COLLATE NOCASE`, acronym)
	return err
}
