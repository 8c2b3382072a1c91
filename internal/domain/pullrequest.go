package domain

import "time"

// PullRequest represents a pull request normalized from any platform.
// This is a domain model (part of business logic).
type PullRequest struct {
	ID          string    `json:"id"`
	Source      Source    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      Author    `json:"author"`
	Repository  string    `json:"repository"` // "owner/name"
	Branch      string    `json:"branch"`     // source branch
	Status      Status    `json:"status"`
	Comments    int       `json:"comments"`
	Commits     int       `json:"commits"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	URL         string    `json:"url"`
	IsReviewer  bool      `json:"isReviewer"` // requesting user is a requested/assigned reviewer
	Reviewed    bool      `json:"reviewed"`   // requesting user has completed their review action
	IsOwner     bool      `json:"isOwner"`    // requesting user authored the PR
}

// Author represents the author of a pull request.
type Author struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// Key identifies a pull request globally across platforms.
// No two records in the persisted collection share the same key.
type Key struct {
	Source Source
	ID     string
}

// Key returns the composite key of the pull request.
func (p PullRequest) Key() Key {
	return Key{Source: p.Source, ID: p.ID}
}

// Source identifies the platform a pull request came from.
type Source string

const (
	SourceGitHub    Source = "github"
	SourceBitbucket Source = "bitbucket"
)

// Sources lists all supported platforms in a stable order.
func Sources() []Source {
	return []Source{SourceGitHub, SourceBitbucket}
}

// Status represents the state of a pull request.
type Status string

const (
	StatusOpen   Status = "open"
	StatusMerged Status = "merged"
	StatusClosed Status = "closed"
)
