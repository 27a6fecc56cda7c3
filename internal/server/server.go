// Package server exposes a read-only operational API over the task
// store: health, task listings, board snapshots and guild config. All
// writes go through the bot; the API is for dashboards and tooling.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"crewboard/internal/board"
	"crewboard/internal/config"
	"crewboard/internal/domain"
	"crewboard/internal/engine"
	"crewboard/internal/engine/auth"
	"crewboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty"`
}

type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the crewboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.Use(newRequestLogMiddleware(cfg.Logger))
	hcfg := huma.DefaultConfig("Crewboard API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerBoards(group, cfg.Engine)
	registerConfig(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pe auth.PermissionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var te engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": te.From, "to": te.To})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}, error) {
		resp := &struct {
			Body struct {
				Status string `json:"status" example:"ok"`
			}
		}{}
		resp.Body.Status = "ok"
		return resp, nil
	})
}

func registerTasks(api huma.API, eng engine.Engine) {
	type taskDetail struct {
		Task      domain.Task       `json:"task"`
		Assignees []domain.Assignee `json:"assignees"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-game-tasks",
		Method:      http.MethodGet,
		Path:        "/games/{acronym}/tasks",
		Summary:     "List a game's tasks",
	}, func(ctx context.Context, input *struct {
		Acronym string `path:"acronym"`
	}) (*struct {
		Body struct {
			Tasks []domain.Task `json:"tasks"`
		}
	}, error) {
		tasks, err := eng.Repo.ListTasksByGame(ctx, input.Acronym)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Tasks []domain.Task `json:"tasks"`
			}
		}{}
		resp.Body.Tasks = tasks
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get one task with its team",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body taskDetail
	}, error) {
		t, assignees, err := eng.TaskDetail(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body taskDetail }{Body: taskDetail{Task: t, Assignees: assignees}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-history",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/history",
		Summary:     "Get a task's audit trail",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body struct {
			History []domain.HistoryEntry `json:"history"`
		}
	}, error) {
		if _, err := eng.Repo.GetTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		entries, err := eng.Repo.ListHistory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				History []domain.HistoryEntry `json:"history"`
			}
		}{}
		resp.Body.History = entries
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-tasks",
		Method:      http.MethodGet,
		Path:        "/users/{id}/tasks",
		Summary:     "List tasks assigned to a user",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body struct {
			Tasks []domain.Task `json:"tasks"`
		}
	}, error) {
		tasks, err := eng.ListTasksByAssignee(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Tasks []domain.Task `json:"tasks"`
			}
		}{}
		resp.Body.Tasks = tasks
		return resp, nil
	})
}

func registerBoards(api huma.API, eng engine.Engine) {
	type bucket struct {
		Status string        `json:"status"`
		Tasks  []domain.Task `json:"tasks"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/games/{acronym}/board",
		Summary:     "Board snapshot grouped by status",
	}, func(ctx context.Context, input *struct {
		Acronym string `path:"acronym"`
	}) (*struct {
		Body struct {
			Buckets []bucket `json:"buckets"`
		}
	}, error) {
		tasks, err := eng.Repo.ListBoardTasks(ctx, input.Acronym)
		if err != nil {
			return nil, handleError(err)
		}
		grouped := board.Partition(tasks)
		resp := &struct {
			Body struct {
				Buckets []bucket `json:"buckets"`
			}
		}{}
		for _, status := range domain.BoardStatuses {
			resp.Body.Buckets = append(resp.Body.Buckets, bucket{Status: status, Tasks: grouped[status]})
		}
		return resp, nil
	})
}

func registerConfig(api huma.API, eng engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-guild-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Effective guild configuration",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body config.Config
	}, error) {
		cfg, err := eng.Repo.GetGuildConfig(ctx, eng.GuildID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body config.Config }{Body: *cfg}, nil
	})
}
