package vcs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sourpie/gitknow/internal/port"
)

// RepoRef identifies a hosted repository.
type RepoRef struct {
	Host  string
	Owner string
	Name  string
}

// CloneURL returns the https clone URL of the repository.
func (r RepoRef) CloneURL() string {
	return fmt.Sprintf("https://%s/%s/%s.git", r.Host, r.Owner, r.Name)
}

// ParseRepoURL extracts owner and repository name from a repository URL such as
// https://github.com/owner/repo, https://github.com/owner/repo.git or
// git@github.com:owner/repo.git.
func ParseRepoURL(raw string) (RepoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepoRef{}, fmt.Errorf("%w: empty", port.ErrInvalidRepoURL)
	}

	var host, path string
	if strings.HasPrefix(raw, "git@") {
		rest := strings.TrimPrefix(raw, "git@")
		h, p, ok := strings.Cut(rest, ":")
		if !ok {
			return RepoRef{}, fmt.Errorf("%w: %q", port.ErrInvalidRepoURL, raw)
		}
		host, path = h, p
	} else {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return RepoRef{}, fmt.Errorf("%w: %q", port.ErrInvalidRepoURL, raw)
		}
		host, path = u.Host, u.Path
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return RepoRef{}, fmt.Errorf("%w: %q", port.ErrInvalidRepoURL, raw)
	}

	return RepoRef{
		Host:  host,
		Owner: segments[0],
		Name:  strings.TrimSuffix(segments[1], ".git"),
	}, nil
}
