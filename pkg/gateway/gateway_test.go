package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeHost is an in-memory hosted repository API.
type fakeHost struct {
	repoExists bool
	branches   map[string]string            // branch -> commit sha
	commits    map[string]string            // commit sha -> tree sha
	trees      map[string]map[string]string // tree sha -> path -> blob sha
	blobs      map[string]string            // blob sha -> content
	nextID     int
	rejectPush bool
	created    []string // branch names created via git/refs
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		repoExists: true,
		branches:   map[string]string{},
		commits:    map[string]string{},
		trees:      map[string]map[string]string{},
		blobs:      map[string]string{},
	}
}

func (f *fakeHost) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%04d", prefix, f.nextID)
}

// seedBranch installs a branch whose tree holds the given files.
func (f *fakeHost) seedBranch(branch string, files map[string]string) {
	tree := map[string]string{}
	for path, content := range files {
		sha, ok := f.shaFor(content)
		if !ok {
			sha = f.id("blob")
			f.blobs[sha] = content
		}
		tree[path] = sha
	}
	treeSHA := f.id("tree")
	f.trees[treeSHA] = tree
	commitSHA := f.id("commit")
	f.commits[commitSHA] = treeSHA
	f.branches[branch] = commitSHA
}

func (f *fakeHost) shaFor(content string) (string, bool) {
	for sha, c := range f.blobs {
		if c == content {
			return sha, true
		}
	}
	return "", false
}

func (f *fakeHost) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/repos/alice/proj")
		switch {
		case path == "" && r.Method == http.MethodGet:
			if !f.repoExists {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			fmt.Fprint(w, `{"full_name":"alice/proj"}`)

		case strings.HasPrefix(path, "/branches/"):
			branch := strings.TrimPrefix(path, "/branches/")
			commitSHA, ok := f.branches[branch]
			if !ok {
				http.Error(w, `{"message":"Branch not found"}`, http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"commit":{"sha":%q,"commit":{"tree":{"sha":%q}}}}`, commitSHA, f.commits[commitSHA])

		case path == "/git/refs" && r.Method == http.MethodPost:
			var req struct {
				Ref string `json:"ref"`
				SHA string `json:"sha"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			branch := strings.TrimPrefix(req.Ref, "refs/heads/")
			f.branches[branch] = req.SHA
			f.created = append(f.created, branch)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"ref":%q,"object":{"sha":%q}}`, req.Ref, req.SHA)

		case strings.HasPrefix(path, "/git/trees/") && r.Method == http.MethodGet:
			sha := strings.TrimPrefix(strings.Split(path, "?")[0], "/git/trees/")
			tree, ok := f.trees[sha]
			if !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			var entries []map[string]string
			for p, blobSHA := range tree {
				entries = append(entries, map[string]string{
					"path": p, "mode": "100644", "type": "blob", "sha": blobSHA,
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"tree": entries, "truncated": false})

		case strings.HasPrefix(path, "/git/blobs/") && r.Method == http.MethodGet:
			sha := strings.TrimPrefix(path, "/git/blobs/")
			content, ok := f.blobs[sha]
			if !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
				"encoding": "base64",
			})

		case path == "/git/blobs" && r.Method == http.MethodPost:
			var req struct {
				Content  string `json:"content"`
				Encoding string `json:"encoding"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			data, _ := base64.StdEncoding.DecodeString(req.Content)
			sha := f.id("blob")
			f.blobs[sha] = string(data)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"sha":%q}`, sha)

		case path == "/git/trees" && r.Method == http.MethodPost:
			var req struct {
				BaseTree string `json:"base_tree"`
				Tree     []struct {
					Path string `json:"path"`
					SHA  string `json:"sha"`
				} `json:"tree"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			tree := map[string]string{}
			for p, sha := range f.trees[req.BaseTree] {
				tree[p] = sha
			}
			for _, e := range req.Tree {
				tree[e.Path] = e.SHA
			}
			sha := f.id("tree")
			f.trees[sha] = tree
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"sha":%q}`, sha)

		case path == "/git/commits" && r.Method == http.MethodPost:
			var req struct {
				Tree string `json:"tree"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			sha := f.id("commit")
			f.commits[sha] = req.Tree
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"sha":%q}`, sha)

		case strings.HasPrefix(path, "/git/refs/heads/") && r.Method == http.MethodPatch:
			if f.rejectPush {
				http.Error(w, `{"message":"Update is not a fast forward"}`, http.StatusUnprocessableEntity)
				return
			}
			branch := strings.TrimPrefix(path, "/git/refs/heads/")
			var req struct {
				SHA string `json:"sha"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.branches[branch] = req.SHA
			fmt.Fprintf(w, `{"object":{"sha":%q}}`, req.SHA)

		default:
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		}
	})
}

func testGateway(t *testing.T, host *fakeHost) http.Handler {
	t.Helper()
	ts := httptest.NewServer(host.handler())
	t.Cleanup(ts.Close)
	srv := NewServer(Config{
		APIBase:     ts.URL,
		Token:       "test-token",
		MaxAttempts: 1,
	})
	return srv.Handler()
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const repoURL = "https://github.com/alice/proj"

func TestVerifyEndpoint(t *testing.T) {
	host := newFakeHost()
	h := testGateway(t, host)

	rec := post(t, h, "/verify", map[string]string{"repoUrl": repoURL})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp verifyResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Exists {
		t.Fatal("exists = false, want true")
	}

	host.repoExists = false
	rec = post(t, h, "/verify", map[string]string{"repoUrl": repoURL})
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.Exists {
		t.Fatalf("status = %d exists = %v, want 200 false", rec.Code, resp.Exists)
	}
}

func TestBranchDiffEndpoint(t *testing.T) {
	host := newFakeHost()
	host.seedBranch("main", map[string]string{"a": "1", "b": "2"})
	host.seedBranch("feature", map[string]string{"b": "2", "c": "3"})
	h := testGateway(t, host)

	rec := post(t, h, "/branch-diff", branchDiffRequest{
		RepoURL:       repoURL,
		TargetBranch:  "feature",
		CurrentBranch: "main",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp branchDiffResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	byPath := map[string]diffFile{}
	for _, f := range resp.Files {
		byPath[f.Path] = f
	}
	if f := byPath["c"]; f.Status != "added" || f.Content != "3" {
		t.Errorf("c = %+v, want added with content", f)
	}
	if f := byPath["b"]; f.Status != "unchanged" || f.Content != "" {
		t.Errorf("b = %+v, want unchanged without content", f)
	}
	if len(resp.Deleted) != 1 || resp.Deleted[0] != "a" {
		t.Errorf("deleted = %v, want [a]", resp.Deleted)
	}
	if resp.CommitSHA != host.branches["feature"] {
		t.Errorf("commitSha = %q", resp.CommitSHA)
	}
}

func TestBranchDiffEndpoint_FirstActivation(t *testing.T) {
	host := newFakeHost()
	host.seedBranch("feature", map[string]string{"a": "1", "b": "2"})
	h := testGateway(t, host)

	rec := post(t, h, "/branch-diff", branchDiffRequest{
		RepoURL:      repoURL,
		TargetBranch: "feature",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp branchDiffResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	for _, f := range resp.Files {
		if f.Status != "added" {
			t.Errorf("%s = %s, want added", f.Path, f.Status)
		}
	}
	if len(resp.Deleted) != 0 {
		t.Errorf("deleted = %v, want none", resp.Deleted)
	}
}

func TestSwitchBranchEndpoint_CreatesMissingRef(t *testing.T) {
	host := newFakeHost()
	host.seedBranch("main", map[string]string{"a.txt": "hello"})
	h := testGateway(t, host)

	rec := post(t, h, "/switch-branch", switchBranchRequest{
		RepoURL:    repoURL,
		BranchName: "frame-7",
		FromBranch: "main",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp switchBranchResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Files) != 1 || resp.Files[0].Path != "a.txt" || resp.Files[0].Content != "hello" {
		t.Fatalf("files = %+v", resp.Files)
	}
	if len(host.created) != 1 || host.created[0] != "frame-7" {
		t.Fatalf("created refs = %v, want [frame-7]", host.created)
	}
}

func TestPushEndpoint(t *testing.T) {
	host := newFakeHost()
	host.seedBranch("main", map[string]string{"a.txt": "old"})
	h := testGateway(t, host)

	rec := post(t, h, "/push", pushRequest{
		RepoURL: repoURL,
		Branch:  "main",
		Commits: "update a",
		Files:   []FileContent{{Path: "a.txt", Content: "new"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp pushResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.CommitSHA == "" || resp.TreeSHA == "" {
		t.Fatalf("resp = %+v", resp)
	}
	if host.branches["main"] != resp.CommitSHA {
		t.Error("ref not advanced to new commit")
	}
	if tree := host.trees[resp.TreeSHA]; host.blobs[tree["a.txt"]] != "new" {
		t.Error("pushed content not in new tree")
	}
}

func TestPushEndpoint_NonFastForwardRejected(t *testing.T) {
	host := newFakeHost()
	host.seedBranch("main", map[string]string{"a.txt": "old"})
	host.rejectPush = true
	h := testGateway(t, host)

	rec := post(t, h, "/push", pushRequest{
		RepoURL: repoURL,
		Branch:  "main",
		Files:   []FileContent{{Path: "a.txt", Content: "new"}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Code != "remote_conflict" {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestInitializeEndpoint(t *testing.T) {
	host := newFakeHost()
	host.seedBranch("main", map[string]string{})
	h := testGateway(t, host)

	rec := post(t, h, "/initialize", initializeRequest{
		RepoURL: repoURL,
		Branch:  "frame-1",
		Files:   []FileContent{{Path: "readme.md", Content: "hi"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp initializeResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Repo != "alice/proj" || resp.Branch != "frame-1" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Files) != 1 || resp.Files[0] != "readme.md" {
		t.Fatalf("files = %v", resp.Files)
	}
	if _, ok := host.branches["frame-1"]; !ok {
		t.Fatal("branch frame-1 not created")
	}
}

func TestBadRequestBody(t *testing.T) {
	h := testGateway(t, newFakeHost())
	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framegit.toml")
	if err := os.WriteFile(path, []byte("listen = \":9000\"\ntoken = \"file-token\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.Token != "file-token" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Token)
	}
	if cfg.Listen == "" {
		t.Fatal("default listen address missing")
	}
}

func TestLoadConfig_MissingToken(t *testing.T) {
	t.Setenv(EnvToken, "")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for missing token")
	}
}
