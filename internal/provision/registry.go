package provision

import (
	"context"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/domain"
	"crewboard/internal/repo"
)

// Registry registers games and resolves their channel names. Channel
// and role creation itself happens in the chat layer; the registry owns
// the durable record and the naming.
type Registry struct {
	Repo repo.Repo
	Now  func() time.Time
}

// RegisterGame stores a new game under a conflict-free acronym.
func (r Registry) RegisterGame(ctx context.Context, name, categoryID string) (domain.Game, error) {
	existing, err := r.Repo.ListAcronyms(ctx)
	if err != nil {
		return domain.Game{}, err
	}
	acronym := ResolveAcronymConflict(GenerateAcronym(name), existing)
	now := r.Now
	if now == nil {
		now = time.Now
	}
	g := domain.Game{
		Name:       name,
		Acronym:    acronym,
		CategoryID: categoryID,
		CreatedAt:  now().UTC().Format(time.RFC3339),
	}
	id, err := r.Repo.InsertGame(ctx, g)
	if err != nil {
		return domain.Game{}, err
	}
	g.ID = id
	return g, nil
}

// ChannelNames returns the board, questions and leads channel names for
// a game under the guild's templates. In global mode the per-game names
// are empty; callers use the configured global channel ids instead.
func ChannelNames(cfg *config.Config, acronym string) (board, questions, leads string) {
	if cfg.ChannelMode != config.ChannelModePerGame {
		return "", "", ""
	}
	return ExpandTemplate(cfg.BoardChannelTemplate, acronym),
		ExpandTemplate(cfg.QuestionsChannelTemplate, acronym),
		ExpandTemplate(cfg.LeadsChannelTemplate, acronym)
}
