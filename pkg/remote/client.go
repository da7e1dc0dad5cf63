// Package remote is the trusted-side client for a hosted repository
// API. It holds the bearer credential; nothing in the sandboxed engine
// ever sees it.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/easelhq/framegit/pkg/errs"
)

// Response limits per endpoint type.
const (
	responseLimitDefault = 2 << 20  // 2MB
	responseLimitTree    = 8 << 20  // 8MB
	responseLimitBlob    = 32 << 20 // 32MB
)

// BranchHead is the resolved tip of a remote branch.
type BranchHead struct {
	CommitSHA string
	TreeSHA   string
}

// TreeEntry is one entry of a remote tree listing. SHA values are in
// whatever hash scheme the host uses; the client treats them as opaque.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// ClientOptions configures the hosted-API client.
type ClientOptions struct {
	APIBase     string        // API root, e.g. https://api.github.com
	Timeout     time.Duration // HTTP client timeout (default 60s)
	MaxAttempts int           // retry attempts (default 3)
	Backoff     time.Duration // initial retry backoff (default 1s)
}

// Client talks to one hosted repository.
type Client struct {
	endpoint    Endpoint
	apiBase     string
	token       string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
}

// DefaultAPIBase is used when ClientOptions.APIBase is empty.
const DefaultAPIBase = "https://api.github.com"

// NewClient creates a client for the repository named by repoURL,
// authenticating every request with the bearer token.
func NewClient(repoURL, token string, opts ClientOptions) (*Client, error) {
	endpoint, err := ParseEndpoint(repoURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("hosted API token is required: %w", errs.ErrMisconfigured)
	}
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	return &Client{
		endpoint:    endpoint,
		apiBase:     strings.TrimRight(opts.APIBase, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}, nil
}

// Endpoint returns the parsed endpoint metadata.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s%s", c.apiBase, url.PathEscape(c.endpoint.Owner), url.PathEscape(c.endpoint.Repo), suffix)
}

// VerifyRepo reports whether the remote repository exists and the token
// can see it.
func (c *Client) VerifyRepo(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.repoPath(""), nil)
	if err != nil {
		return false, err
	}
	_, status, err := c.do(req, responseLimitDefault)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetBranchHead resolves a branch to its tip commit and root tree.
func (c *Client) GetBranchHead(ctx context.Context, branch string) (BranchHead, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.repoPath("/branches/"+url.PathEscape(branch)), nil)
	if err != nil {
		return BranchHead{}, err
	}
	body, _, err := c.do(req, responseLimitDefault)
	if err != nil {
		return BranchHead{}, fmt.Errorf("resolve branch %q: %w", branch, err)
	}
	var resp struct {
		Commit struct {
			SHA    string `json:"sha"`
			Commit struct {
				Tree struct {
					SHA string `json:"sha"`
				} `json:"tree"`
			} `json:"commit"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return BranchHead{}, fmt.Errorf("decode branch response: %w", err)
	}
	if resp.Commit.SHA == "" {
		return BranchHead{}, fmt.Errorf("branch %q has no tip commit: %w", branch, errs.ErrNotFound)
	}
	return BranchHead{CommitSHA: resp.Commit.SHA, TreeSHA: resp.Commit.Commit.Tree.SHA}, nil
}

// CreateRef creates refs/heads/<branch> pointing at the tip of
// fromBranch. Used when switching to a branch that does not exist yet.
func (c *Client) CreateRef(ctx context.Context, branch, fromBranch string) (BranchHead, error) {
	head, err := c.GetBranchHead(ctx, fromBranch)
	if err != nil {
		return BranchHead{}, fmt.Errorf("create ref %q from %q: %w", branch, fromBranch, err)
	}
	payload, err := json.Marshal(struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: "refs/heads/" + branch, SHA: head.CommitSHA})
	if err != nil {
		return BranchHead{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.repoPath("/git/refs"), bytes.NewReader(payload))
	if err != nil {
		return BranchHead{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, _, err := c.do(req, responseLimitDefault); err != nil {
		return BranchHead{}, fmt.Errorf("create ref %q: %w", branch, err)
	}
	return head, nil
}

// GetTree fetches a tree listing recursively. Subtree entries are
// flattened into full paths by the host; only blob entries matter to
// callers syncing files.
func (c *Client) GetTree(ctx context.Context, treeSHA string) ([]TreeEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.repoPath("/git/trees/"+url.PathEscape(treeSHA)+"?recursive=1"), nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(req, responseLimitTree)
	if err != nil {
		return nil, fmt.Errorf("fetch tree %s: %w", treeSHA, err)
	}
	var resp struct {
		Tree      []TreeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode tree response: %w", err)
	}
	if resp.Truncated {
		return nil, fmt.Errorf("tree %s listing truncated by host: %w", treeSHA, errs.ErrTransient)
	}
	return resp.Tree, nil
}

// GetBlob fetches one blob's content.
func (c *Client) GetBlob(ctx context.Context, sha string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.repoPath("/git/blobs/"+url.PathEscape(sha)), nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(req, responseLimitBlob)
	if err != nil {
		return nil, fmt.Errorf("fetch blob %s: %w", sha, err)
	}
	var resp struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode blob response: %w", err)
	}
	switch resp.Encoding {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode blob %s content: %w", sha, err)
		}
		return data, nil
	case "utf-8", "":
		return []byte(resp.Content), nil
	default:
		return nil, fmt.Errorf("blob %s: unsupported encoding %q", sha, resp.Encoding)
	}
}

// CreateBlob uploads content and returns the host-assigned blob SHA.
func (c *Client) CreateBlob(ctx context.Context, content []byte) (string, error) {
	payload, err := json.Marshal(struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}{Content: base64.StdEncoding.EncodeToString(content), Encoding: "base64"})
	if err != nil {
		return "", err
	}
	return c.createObject(ctx, "/git/blobs", payload)
}

// CreateTree creates a tree from blob entries, optionally layered on a
// base tree.
func (c *Client) CreateTree(ctx context.Context, entries []TreeEntry, baseTree string) (string, error) {
	payload, err := json.Marshal(struct {
		BaseTree string      `json:"base_tree,omitempty"`
		Tree     []TreeEntry `json:"tree"`
	}{BaseTree: baseTree, Tree: entries})
	if err != nil {
		return "", err
	}
	return c.createObject(ctx, "/git/trees", payload)
}

// CreateCommit creates a commit pointing at tree with the given parents.
func (c *Client) CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (string, error) {
	if parents == nil {
		parents = []string{}
	}
	payload, err := json.Marshal(struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{Message: message, Tree: treeSHA, Parents: parents})
	if err != nil {
		return "", err
	}
	return c.createObject(ctx, "/git/commits", payload)
}

func (c *Client) createObject(ctx context.Context, suffix string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.repoPath(suffix), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	body, _, err := c.do(req, responseLimitDefault)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", strings.TrimPrefix(suffix, "/git/"), err)
	}
	var resp struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if resp.SHA == "" {
		return "", fmt.Errorf("host returned no sha for created %s", strings.TrimPrefix(suffix, "/git/"))
	}
	return resp.SHA, nil
}

// UpdateRef advances refs/heads/<branch> to sha. Fast-forward only: a
// divergent remote is reported as a conflict, never forced over.
func (c *Client) UpdateRef(ctx context.Context, branch, sha string) error {
	payload, err := json.Marshal(struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: sha, Force: false})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.repoPath("/git/refs/heads/"+url.PathEscape(branch)), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, status, err := c.do(req, responseLimitDefault)
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		return fmt.Errorf("ref %q is not a fast-forward of %s: %w", branch, sha, errs.ErrRemoteConflict)
	}
	if err != nil {
		return fmt.Errorf("update ref %q: %w", branch, err)
	}
	return nil
}

// do runs the request with auth and retry, returning the body and
// status. Non-2xx statuses yield an error classified into the taxonomy;
// the status is still returned so callers can special-case it.
func (c *Client) do(req *http.Request, maxBytes int64) ([]byte, int, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := retryDo(c.httpClient, req, c.maxAttempts, c.backoff)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, errs.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, errs.ErrTransient, readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, resp.StatusCode, nil
	}
	return body, resp.StatusCode, c.statusErr(req, resp.StatusCode, body)
}

func (c *Client) statusErr(req *http.Request, status int, body []byte) error {
	var cause error
	switch {
	case status == http.StatusNotFound:
		cause = errs.ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		cause = errs.ErrMisconfigured
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		cause = errs.ErrRemoteConflict
	case isRetryableStatus(status):
		cause = errs.ErrTransient
	}

	msg := ""
	if re := tryParseAPIError(body); re != nil {
		msg = re.Error()
	} else {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if cause != nil {
		return fmt.Errorf("remote request failed (%s %s): %s: %w", req.Method, req.URL.Path, msg, cause)
	}
	return fmt.Errorf("remote request failed (%s %s): %s", req.Method, req.URL.Path, msg)
}
