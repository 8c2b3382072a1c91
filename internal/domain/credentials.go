package domain

// Credentials holds per-platform authentication material.
// Opaque to the sync core; passed through to provider clients. Never logged.
type Credentials struct {
	GitHub    *GitHubCredentials    `json:"github,omitempty"`
	Bitbucket *BitbucketCredentials `json:"bitbucket,omitempty"`
}

// GitHubCredentials authenticates against the GitHub REST API.
type GitHubCredentials struct {
	Token string `json:"token"`
}

// BitbucketCredentials authenticates against the Bitbucket Cloud API
// (Basic auth over username:app-password).
type BitbucketCredentials struct {
	Username    string `json:"username"`
	AppPassword string `json:"appPassword"`
}

// HasGitHub returns true if GitHub credentials are configured.
func (c Credentials) HasGitHub() bool {
	return c.GitHub != nil && c.GitHub.Token != ""
}

// HasBitbucket returns true if Bitbucket credentials are configured.
func (c Credentials) HasBitbucket() bool {
	return c.Bitbucket != nil && c.Bitbucket.Username != "" && c.Bitbucket.AppPassword != ""
}
