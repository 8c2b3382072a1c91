package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vilaca/pr-dashboard/internal/domain"
	"github.com/vilaca/pr-dashboard/internal/storage"
)

// ErrListNotFound is returned for operations on an unknown reviewer list.
var ErrListNotFound = errors.New("reviewer list not found")

// GitHubDirectory is the slice of the GitHub client the reviewer feature
// needs: user lookup and the reviewer-request mutation.
type GitHubDirectory interface {
	GetUser(ctx context.Context, creds domain.Credentials, username string) (domain.GithubUser, error)
	RequestReviewers(ctx context.Context, creds domain.Credentials, owner, repo string, number int, reviewers []string) error
}

// Reviewers manages named reviewer groups and applies them to pull
// requests through the GitHub client.
type Reviewers struct {
	store  storage.Store
	github GitHubDirectory
	log    *zap.SugaredLogger
}

// NewReviewers creates the reviewer-list service.
func NewReviewers(store storage.Store, github GitHubDirectory, log *zap.SugaredLogger) *Reviewers {
	return &Reviewers{store: store, github: github, log: log}
}

// Lists returns all stored reviewer lists.
func (r *Reviewers) Lists(ctx context.Context) ([]domain.ReviewerList, error) {
	var lists []domain.ReviewerList
	if _, err := r.store.Get(ctx, storage.KeyReviewerLists, &lists); err != nil {
		return nil, fmt.Errorf("failed to load reviewer lists: %w", err)
	}
	return lists, nil
}

// CreateList adds an empty named list and returns it.
func (r *Reviewers) CreateList(ctx context.Context, name string) (domain.ReviewerList, error) {
	lists, err := r.Lists(ctx)
	if err != nil {
		return domain.ReviewerList{}, err
	}

	list := domain.ReviewerList{
		ID:    uuid.NewString(),
		Name:  name,
		Users: []domain.GithubUser{},
	}
	lists = append(lists, list)

	if err := r.store.Set(ctx, storage.KeyReviewerLists, lists); err != nil {
		return domain.ReviewerList{}, fmt.Errorf("failed to save reviewer lists: %w", err)
	}
	return list, nil
}

// UpdateList replaces a stored list by id.
func (r *Reviewers) UpdateList(ctx context.Context, updated domain.ReviewerList) error {
	lists, err := r.Lists(ctx)
	if err != nil {
		return err
	}

	found := false
	for i, list := range lists {
		if list.ID == updated.ID {
			lists[i] = updated
			found = true
			break
		}
	}
	if !found {
		return ErrListNotFound
	}

	if err := r.store.Set(ctx, storage.KeyReviewerLists, lists); err != nil {
		return fmt.Errorf("failed to save reviewer lists: %w", err)
	}
	return nil
}

// DeleteList removes a stored list by id.
func (r *Reviewers) DeleteList(ctx context.Context, id string) error {
	lists, err := r.Lists(ctx)
	if err != nil {
		return err
	}

	kept := lists[:0]
	for _, list := range lists {
		if list.ID != id {
			kept = append(kept, list)
		}
	}
	if len(kept) == len(lists) {
		return ErrListNotFound
	}

	if err := r.store.Set(ctx, storage.KeyReviewerLists, kept); err != nil {
		return fmt.Errorf("failed to save reviewer lists: %w", err)
	}
	return nil
}

// LookupUser resolves a GitHub account by username with the stored
// credentials.
func (r *Reviewers) LookupUser(ctx context.Context, username string) (domain.GithubUser, error) {
	creds, err := r.credentials(ctx)
	if err != nil {
		return domain.GithubUser{}, err
	}
	return r.github.GetUser(ctx, creds, username)
}

// AddReviewers requests the given logins as reviewers on a pull request.
func (r *Reviewers) AddReviewers(ctx context.Context, owner, repo string, number int, logins []string) error {
	creds, err := r.credentials(ctx)
	if err != nil {
		return err
	}

	if err := r.github.RequestReviewers(ctx, creds, owner, repo, number, logins); err != nil {
		return err
	}
	r.log.Infow("reviewers requested", "repository", owner+"/"+repo, "number", number, "reviewers", len(logins))
	return nil
}

// AddReviewersFromList requests every member of a stored list as a
// reviewer on a pull request.
func (r *Reviewers) AddReviewersFromList(ctx context.Context, owner, repo string, number int, listID string) error {
	lists, err := r.Lists(ctx)
	if err != nil {
		return err
	}

	for _, list := range lists {
		if list.ID != listID {
			continue
		}
		logins := make([]string, 0, len(list.Users))
		for _, user := range list.Users {
			logins = append(logins, user.Login)
		}
		return r.AddReviewers(ctx, owner, repo, number, logins)
	}
	return ErrListNotFound
}

func (r *Reviewers) credentials(ctx context.Context) (domain.Credentials, error) {
	var creds domain.Credentials
	if _, err := r.store.Get(ctx, storage.KeyCredentials, &creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	return creds, nil
}
