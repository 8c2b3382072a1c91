// Package server exposes the persisted collection and the sync controls
// over a JSON HTTP API.
package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vilaca/pr-dashboard/internal/api"
	"github.com/vilaca/pr-dashboard/internal/domain"
	"github.com/vilaca/pr-dashboard/internal/service"
	"github.com/vilaca/pr-dashboard/internal/storage"
)

// Handler wires HTTP routes to the sync services.
type Handler struct {
	log       *zap.SugaredLogger
	syncer    *service.Syncer
	reviewers *service.Reviewers
	store     storage.Store
}

// NewHandler constructs the HTTP handler with its service dependencies.
func NewHandler(log *zap.SugaredLogger, syncer *service.Syncer, reviewers *service.Reviewers, store storage.Store) *Handler {
	return &Handler{
		log:       log,
		syncer:    syncer,
		reviewers: reviewers,
		store:     store,
	}
}

// Register attaches all routes to the app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	apiGroup := app.Group("/api")
	apiGroup.Get("/prs", h.listPullRequests)
	apiGroup.Post("/sync", h.runSync)
	apiGroup.Get("/settings", h.getSettings)
	apiGroup.Put("/settings", h.putSettings)
	apiGroup.Get("/whitelist", h.getWhitelist)
	apiGroup.Put("/whitelist", h.putWhitelist)
	apiGroup.Get("/reviewer-lists", h.listReviewerLists)
	apiGroup.Post("/reviewer-lists", h.createReviewerList)
	apiGroup.Put("/reviewer-lists/:id", h.updateReviewerList)
	apiGroup.Delete("/reviewer-lists/:id", h.deleteReviewerList)
	apiGroup.Get("/github/users/:username", h.lookupGithubUser)
	apiGroup.Post("/prs/github/:owner/:repo/:number/reviewers", h.addReviewers)
}

// listPullRequests returns the persisted collection, optionally filtered
// by source and status.
func (h *Handler) listPullRequests(c *fiber.Ctx) error {
	prs, err := h.syncer.Current(c.Context())
	if err != nil {
		return h.writeError(c, err)
	}

	source := c.Query("source")
	state := c.Query("state")

	filtered := make([]domain.PullRequest, 0, len(prs))
	for _, pr := range prs {
		if source != "" && string(pr.Source) != source {
			continue
		}
		if state != "" && string(pr.Status) != state {
			continue
		}
		filtered = append(filtered, pr)
	}

	return c.JSON(struct {
		PullRequests []domain.PullRequest `json:"pullRequests"`
		Total        int                  `json:"total"`
	}{PullRequests: filtered, Total: len(filtered)})
}

// runSync triggers a sync run now. Safe to call while the poller is
// active: a run already in flight yields 409.
func (h *Handler) runSync(c *fiber.Ctx) error {
	result, err := h.syncer.Run(c.Context())
	if err != nil {
		return h.writeError(c, err)
	}

	messages := make([]string, 0, len(result.Errors))
	for _, provErr := range result.Errors {
		messages = append(messages, provErr.Error())
	}

	status := http.StatusOK
	if len(result.Errors) > 0 && result.Fetched == 0 {
		// Every configured provider failed; nothing was committed.
		status = http.StatusBadGateway
	}

	return c.Status(status).JSON(struct {
		Fetched int      `json:"fetched"`
		Total   int      `json:"total"`
		Errors  []string `json:"errors"`
	}{Fetched: result.Fetched, Total: len(result.PullRequests), Errors: messages})
}

type settingsResponse struct {
	RefreshIntervalMinutes int  `json:"refreshIntervalMinutes"`
	GitHubConfigured       bool `json:"githubConfigured"`
	BitbucketConfigured    bool `json:"bitbucketConfigured"`
}

type settingsRequest struct {
	RefreshIntervalMinutes int                 `json:"refreshIntervalMinutes"`
	Credentials            *domain.Credentials `json:"credentials"`
}

// getSettings reports the refresh interval and which platforms have
// credentials. Secrets are write-only and never echoed back.
func (h *Handler) getSettings(c *fiber.Ctx) error {
	minutes := int(service.DefaultRefreshInterval.Minutes())
	if _, err := h.store.Get(c.Context(), storage.KeyRefreshInterval, &minutes); err != nil {
		return h.writeError(c, err)
	}

	var creds domain.Credentials
	if _, err := h.store.Get(c.Context(), storage.KeyCredentials, &creds); err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(settingsResponse{
		RefreshIntervalMinutes: minutes,
		GitHubConfigured:       creds.HasGitHub(),
		BitbucketConfigured:    creds.HasBitbucket(),
	})
}

// putSettings updates the refresh interval and/or stored credentials.
func (h *Handler) putSettings(c *fiber.Ctx) error {
	var body settingsRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(http.StatusBadRequest).JSON(errorBody("invalid body"))
	}

	if body.RefreshIntervalMinutes > 0 {
		if err := h.store.Set(c.Context(), storage.KeyRefreshInterval, body.RefreshIntervalMinutes); err != nil {
			return h.writeError(c, err)
		}
	}
	if body.Credentials != nil {
		if err := h.store.Set(c.Context(), storage.KeyCredentials, body.Credentials); err != nil {
			return h.writeError(c, err)
		}
	}

	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) getWhitelist(c *fiber.Ctx) error {
	repos := []string{}
	if _, err := h.store.Get(c.Context(), storage.KeyWhitelist, &repos); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(repos)
}

func (h *Handler) putWhitelist(c *fiber.Ctx) error {
	var repos []string
	if err := c.BodyParser(&repos); err != nil {
		return c.Status(http.StatusBadRequest).JSON(errorBody("invalid body"))
	}
	if err := h.store.Set(c.Context(), storage.KeyWhitelist, repos); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) listReviewerLists(c *fiber.Ctx) error {
	lists, err := h.reviewers.Lists(c.Context())
	if err != nil {
		return h.writeError(c, err)
	}
	if lists == nil {
		lists = []domain.ReviewerList{}
	}
	return c.JSON(lists)
}

func (h *Handler) createReviewerList(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return c.Status(http.StatusBadRequest).JSON(errorBody("name is required"))
	}

	list, err := h.reviewers.CreateList(c.Context(), body.Name)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(list)
}

func (h *Handler) updateReviewerList(c *fiber.Ctx) error {
	var list domain.ReviewerList
	if err := c.BodyParser(&list); err != nil {
		return c.Status(http.StatusBadRequest).JSON(errorBody("invalid body"))
	}
	list.ID = c.Params("id")

	if err := h.reviewers.UpdateList(c.Context(), list); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) deleteReviewerList(c *fiber.Ctx) error {
	if err := h.reviewers.DeleteList(c.Context(), c.Params("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) lookupGithubUser(c *fiber.Ctx) error {
	user, err := h.reviewers.LookupUser(c.Context(), c.Params("username"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(user)
}

// addReviewers requests reviewers on a GitHub pull request, either an
// explicit login list or a stored reviewer group.
func (h *Handler) addReviewers(c *fiber.Ctx) error {
	number, err := c.ParamsInt("number")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(errorBody("invalid pull request number"))
	}

	var body struct {
		Reviewers []string `json:"reviewers"`
		ListID    string   `json:"listId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(http.StatusBadRequest).JSON(errorBody("invalid body"))
	}

	owner, repo := c.Params("owner"), c.Params("repo")
	switch {
	case body.ListID != "":
		err = h.reviewers.AddReviewersFromList(c.Context(), owner, repo, number, body.ListID)
	case len(body.Reviewers) > 0:
		err = h.reviewers.AddReviewers(c.Context(), owner, repo, number, body.Reviewers)
	default:
		return c.Status(http.StatusBadRequest).JSON(errorBody("reviewers or listId is required"))
	}
	if err != nil {
		return h.writeError(c, err)
	}

	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) writeError(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	msg := "internal error"

	var provErr *api.ProviderError
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, service.ErrListNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.As(err, &provErr):
		status = http.StatusBadGateway
		msg = provErr.Error()
	default:
		h.log.Errorw("request failed", "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(errorBody(msg))
}

func errorBody(msg string) fiber.Map {
	return fiber.Map{"error": msg}
}
