package domain

// GithubUser is a GitHub account resolved by username lookup.
type GithubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// ReviewerList is a named group of GitHub users that can be requested
// as reviewers on a pull request in one action.
type ReviewerList struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Users []GithubUser `json:"users"`
}
