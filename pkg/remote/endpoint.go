package remote

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/easelhq/framegit/pkg/errs"
)

// Endpoint identifies one hosted repository, derived from a repository
// URL by a fixed rule: owner and repo are the last two path segments,
// with a trailing ".git" stripped from the repo name.
type Endpoint struct {
	Raw   string
	Owner string
	Repo  string
}

// ParseEndpoint parses a repository URL into owner and repo.
//
// Supported inputs include:
// - https://host/owner/repo
// - https://host/owner/repo.git
// - https://host/some/prefix/owner/repo
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("repository URL is required: %w", errs.ErrMisconfigured)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse repository URL %q: %w", raw, errs.ErrMisconfigured)
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoint{}, fmt.Errorf("repository URL %q must include scheme and host: %w", raw, errs.ErrMisconfigured)
	}

	segments := splitPathSegments(u.Path)
	if len(segments) < 2 {
		return Endpoint{}, fmt.Errorf("repository URL %q must include owner and repository: %w", raw, errs.ErrMisconfigured)
	}

	owner := segments[len(segments)-2]
	repo := strings.TrimSuffix(segments[len(segments)-1], ".git")
	if owner == "" || repo == "" {
		return Endpoint{}, fmt.Errorf("repository URL %q must include non-empty owner and repository: %w", raw, errs.ErrMisconfigured)
	}

	return Endpoint{Raw: raw, Owner: owner, Repo: repo}, nil
}

func splitPathSegments(p string) []string {
	p = strings.TrimPrefix(path.Clean(p), "/")
	if p == "" || p == "." {
		return nil
	}
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}
