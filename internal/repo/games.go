package repo

import (
	"context"
	"database/sql"

	"crewboard/internal/domain"
)

func scanGame(row *sql.Row) (domain.Game, error) {
	var g domain.Game
	err := row.Scan(&g.ID, &g.Name, &g.Acronym, &g.CategoryID, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) InsertGame(ctx context.Context, g domain.Game) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO games(name,acronym,category_id,created_at) VALUES (?,?,?,?)`,
		g.Name, g.Acronym, g.CategoryID, g.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetGameByAcronym(ctx context.Context, acronym string) (domain.Game, error) {
	return scanGame(r.DB.QueryRowContext(ctx, `SELECT id,name,acronym,category_id,created_at FROM games WHERE acronym=? COLLATE NOCASE`, acronym))
}

func (r Repo) ListGames(ctx context.Context) ([]domain.Game, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,acronym,category_id,created_at FROM games ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Game
	for rows.Next() {
		var g domain.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Acronym, &g.CategoryID, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) ListAcronyms(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT acronym FROM games ORDER BY acronym`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
