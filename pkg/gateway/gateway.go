// Package gateway exposes hosted-repository operations over a small
// JSON-over-POST surface. Handlers are stateless: each request names
// its repository by URL and the server supplies the credential.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/easelhq/framegit/pkg/errs"
	"github.com/easelhq/framegit/pkg/object"
	"github.com/easelhq/framegit/pkg/remote"
	"github.com/easelhq/framegit/pkg/syncer"
)

const maxRequestBytes = 32 << 20

// Server holds the gateway configuration.
type Server struct {
	cfg    Config
	logger *log.Logger
}

// NewServer creates a gateway server from config.
func NewServer(cfg Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: log.New(os.Stderr, "gateway: ", log.LstdFlags),
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /initialize", s.handleInitialize)
	mux.HandleFunc("POST /branch-diff", s.handleBranchDiff)
	mux.HandleFunc("POST /switch-branch", s.handleSwitchBranch)
	mux.HandleFunc("POST /push", s.handlePush)
	mux.HandleFunc("POST /verify", s.handleVerify)
	return mux
}

// ListenAndServe runs the gateway on the configured address.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("listening on %s", s.cfg.Listen)
	return http.ListenAndServe(s.cfg.Listen, s.Handler())
}

func (s *Server) client(repoURL string) (*remote.Client, error) {
	return remote.NewClient(repoURL, s.cfg.Token, remote.ClientOptions{
		APIBase:     s.cfg.APIBase,
		Timeout:     s.cfg.Timeout,
		MaxAttempts: s.cfg.MaxAttempts,
	})
}

// FileContent is one file payload in a request or response.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type initializeRequest struct {
	RepoURL string        `json:"repoUrl"`
	Branch  string        `json:"branch"`
	Files   []FileContent `json:"files"`
}

type initializeResponse struct {
	Repo   string   `json:"repo"`
	Branch string   `json:"branch"`
	URL    string   `json:"url"`
	Files  []string `json:"files"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.client(req.RepoURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx := r.Context()

	exists, err := client.VerifyRepo(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !exists {
		s.writeError(w, fmt.Errorf("repository %q: %w", req.RepoURL, errs.ErrNotFound))
		return
	}

	if _, err := client.GetBranchHead(ctx, req.Branch); err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			s.writeError(w, err)
			return
		}
		if _, err := client.CreateRef(ctx, req.Branch, "main"); err != nil {
			s.writeError(w, err)
			return
		}
	}

	if len(req.Files) > 0 {
		if _, _, err := s.pushFiles(ctx, client, req.Branch, "initialize frame", req.Files); err != nil {
			s.writeError(w, err)
			return
		}
	}

	ep := client.Endpoint()
	paths := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		paths = append(paths, f.Path)
	}
	s.writeJSON(w, initializeResponse{
		Repo:   ep.Owner + "/" + ep.Repo,
		Branch: req.Branch,
		URL:    req.RepoURL,
		Files:  paths,
	})
}

type branchDiffRequest struct {
	RepoURL       string `json:"repoUrl"`
	TargetBranch  string `json:"targetBranch"`
	CurrentBranch string `json:"currentBranch"`
}

type diffFile struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Status  string `json:"status"`
	Content string `json:"content,omitempty"`
}

type branchDiffResponse struct {
	Files     []diffFile `json:"files"`
	Deleted   []string   `json:"deleted"`
	CommitSHA string     `json:"commitSha"`
	TreeSHA   string     `json:"treeSha"`
}

func (s *Server) handleBranchDiff(w http.ResponseWriter, r *http.Request) {
	var req branchDiffRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.client(req.RepoURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx := r.Context()

	targetHead, err := client.GetBranchHead(ctx, req.TargetBranch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	targetTree, err := s.blobTree(ctx, client, targetHead.TreeSHA)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// An empty current branch means first activation: diff against an
	// empty source so every target file classifies as added.
	sourceTree := &object.Tree{}
	if req.CurrentBranch != "" {
		currentHead, err := client.GetBranchHead(ctx, req.CurrentBranch)
		if err != nil {
			s.writeError(w, err)
			return
		}
		sourceTree, err = s.blobTree(ctx, client, currentHead.TreeSHA)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	d := syncer.Classify(sourceTree, targetTree)
	files := make([]diffFile, 0, len(d.Files))
	for _, change := range d.Files {
		f := diffFile{Path: change.Path, SHA: string(change.SHA), Status: string(change.Status)}
		if change.Status == syncer.ClassAdded || change.Status == syncer.ClassModified {
			content, err := client.GetBlob(ctx, string(change.SHA))
			if err != nil {
				s.writeError(w, err)
				return
			}
			f.Content = string(content)
		}
		files = append(files, f)
	}

	deleted := d.Deleted
	if deleted == nil {
		deleted = []string{}
	}
	s.writeJSON(w, branchDiffResponse{
		Files:     files,
		Deleted:   deleted,
		CommitSHA: targetHead.CommitSHA,
		TreeSHA:   targetHead.TreeSHA,
	})
}

type switchBranchRequest struct {
	RepoURL    string `json:"repoUrl"`
	BranchName string `json:"branchName"`
	FromBranch string `json:"fromBranch"`
}

type switchBranchResponse struct {
	Files []FileContent `json:"files"`
}

func (s *Server) handleSwitchBranch(w http.ResponseWriter, r *http.Request) {
	var req switchBranchRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.client(req.RepoURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx := r.Context()

	head, err := client.GetBranchHead(ctx, req.BranchName)
	if errors.Is(err, errs.ErrNotFound) && req.FromBranch != "" {
		head, err = client.CreateRef(ctx, req.BranchName, req.FromBranch)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries, err := client.GetTree(ctx, head.TreeSHA)
	if err != nil {
		s.writeError(w, err)
		return
	}
	files := make([]FileContent, 0, len(entries))
	for _, e := range entries {
		if e.Type != "blob" {
			continue
		}
		content, err := client.GetBlob(ctx, e.SHA)
		if err != nil {
			s.writeError(w, err)
			return
		}
		files = append(files, FileContent{Path: e.Path, Content: string(content)})
	}
	s.writeJSON(w, switchBranchResponse{Files: files})
}

type pushRequest struct {
	RepoURL string        `json:"repoUrl"`
	Branch  string        `json:"branch"`
	Commits string        `json:"commits"`
	Files   []FileContent `json:"files"`
}

type pushResponse struct {
	CommitSHA string `json:"commitSha"`
	TreeSHA   string `json:"treeSha"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.client(req.RepoURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	message := req.Commits
	if message == "" {
		message = "frame update"
	}
	commitSHA, treeSHA, err := s.pushFiles(r.Context(), client, req.Branch, message, req.Files)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, pushResponse{CommitSHA: commitSHA, TreeSHA: treeSHA})
}

type verifyRequest struct {
	RepoURL string `json:"repoUrl"`
}

type verifyResponse struct {
	Exists bool `json:"exists"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.client(req.RepoURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	exists, err := client.VerifyRepo(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, verifyResponse{Exists: exists})
}

// pushFiles uploads file contents as blobs, builds a tree layered on
// the branch tip, commits, and fast-forwards the ref.
func (s *Server) pushFiles(ctx context.Context, client *remote.Client, branch, message string, files []FileContent) (string, string, error) {
	head, err := client.GetBranchHead(ctx, branch)
	if err != nil {
		return "", "", err
	}

	entries := make([]remote.TreeEntry, 0, len(files))
	for _, f := range files {
		sha, err := client.CreateBlob(ctx, []byte(f.Content))
		if err != nil {
			return "", "", fmt.Errorf("upload %q: %w", f.Path, err)
		}
		entries = append(entries, remote.TreeEntry{
			Path: f.Path,
			Mode: object.ModeFile,
			Type: "blob",
			SHA:  sha,
		})
	}

	treeSHA, err := client.CreateTree(ctx, entries, head.TreeSHA)
	if err != nil {
		return "", "", err
	}
	commitSHA, err := client.CreateCommit(ctx, message, treeSHA, []string{head.CommitSHA})
	if err != nil {
		return "", "", err
	}
	if err := client.UpdateRef(ctx, branch, commitSHA); err != nil {
		return "", "", err
	}
	return commitSHA, treeSHA, nil
}

// blobTree fetches a recursive tree and folds its blob entries into the
// flat tree shape the diff engine understands.
func (s *Server) blobTree(ctx context.Context, client *remote.Client, treeSHA string) (*object.Tree, error) {
	entries, err := client.GetTree(ctx, treeSHA)
	if err != nil {
		return nil, err
	}
	t := &object.Tree{}
	for _, e := range entries {
		if e.Type != "blob" {
			continue
		}
		t.Entries = append(t.Entries, object.TreeEntry{
			Path: e.Path,
			Mode: e.Mode,
			Type: object.TypeBlob,
			SHA:  object.Hash(e.SHA),
		})
	}
	return t, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, "bad_request", "invalid request body", err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrPermissionDenied):
		status, code = http.StatusForbidden, "permission_denied"
	case errors.Is(err, errs.ErrRemoteConflict):
		status, code = http.StatusConflict, "remote_conflict"
	case errors.Is(err, errs.ErrMisconfigured):
		status, code = http.StatusBadRequest, "misconfigured"
	case errors.Is(err, errs.ErrTransient):
		status, code = http.StatusBadGateway, "transient"
	}
	s.logger.Printf("%s: %v", code, err)
	s.writeErrorStatus(w, status, code, err.Error(), "")
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, code, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: code, Message: message, Detail: detail})
}
