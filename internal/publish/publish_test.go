package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/hubexport/internal/domain"
)

var artifacts = map[string]struct {
	body        string
	contentType string
}{
	"/download/p1/parquet":  {"PAR1-rows-PAR1", "application/vnd.apache.parquet"},
	"/download/m1/manifest": {`{"@type":"sc:Dataset"}`, "application/ld+json"},
}

func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := artifacts[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", a.contentType)
		http.ServeContent(w, r, "", time.Time{}, strings.NewReader(a.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testFiles(source string) []FileRef {
	return []FileRef{
		{Path: "data/my-set.parquet", SourceURL: source + "/download/p1/parquet"},
		{Path: "croissant.json", SourceURL: source + "/download/m1/manifest"},
	}
}

type hubServer struct {
	*httptest.Server
	mu       sync.Mutex
	repos    map[string]createRepoRequest
	uploads  map[string]string
	ctypes   map[string]string
	authSeen []string
}

func newHubServer(t *testing.T) *hubServer {
	t.Helper()
	h := &hubServer{
		repos:   make(map[string]createRepoRequest),
		uploads: make(map[string]string),
		ctypes:  make(map[string]string),
	}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.authSeen = append(h.authSeen, r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/repos/create":
			var req createRepoRequest
			json.NewDecoder(r.Body).Decode(&req)
			id := req.Organization + "/" + req.Name
			if _, ok := h.repos[id]; ok {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error":"You already created this dataset repo"}`))
				return
			}
			h.repos[id] = req
			w.Write([]byte(`{"url":"https://hub.example/datasets/` + id + `"}`))

		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/datasets/"):
			data, _ := io.ReadAll(r.Body)
			key := strings.TrimPrefix(r.URL.Path, "/api/datasets/")
			h.uploads[key] = string(data)
			h.ctypes[key] = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusCreated)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *hubServer) repo(id string) createRepoRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.repos[id]
}

func (h *hubServer) upload(key string) (string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploads[key], h.ctypes[key]
}

func (h *hubServer) uploadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.uploads)
}

func (h *hubServer) firstAuth() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authSeen[0]
}

func TestHubRepository_CreateRepository(t *testing.T) {
	hub := newHubServer(t)
	repo := NewHubRepository(HubConfig{Endpoint: hub.URL + "/"})
	ctx := context.Background()

	if err := repo.CreateRepository(ctx, "hf_token", "alice/my-set", "cc-by-4.0"); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	got := hub.repo("alice/my-set")
	if got.Name != "my-set" || got.Organization != "alice" || got.Type != "dataset" || got.License != "cc-by-4.0" {
		t.Errorf("create request = %+v", got)
	}
	if auth := hub.firstAuth(); auth != "Bearer hf_token" {
		t.Errorf("Authorization = %q", auth)
	}

	err := repo.CreateRepository(ctx, "hf_token", "alice/my-set", "cc-by-4.0")
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("second create error = %v, want ErrAlreadyExists", err)
	}

	var verr *domain.ValidationError
	if err := repo.CreateRepository(ctx, "hf_token", "no-namespace", ""); !errors.As(err, &verr) {
		t.Errorf("bad id error = %v, want *ValidationError", err)
	}
}

func TestHubRepository_UploadByReference(t *testing.T) {
	hub := newHubServer(t)
	source := newSourceServer(t)
	repo := NewHubRepository(HubConfig{Endpoint: hub.URL})

	if err := repo.UploadByReference(context.Background(), "hf_token", "alice/my-set", testFiles(source.URL)); err != nil {
		t.Fatalf("UploadByReference: %v", err)
	}

	if got, _ := hub.upload("alice/my-set/upload/main/data/my-set.parquet"); got != "PAR1-rows-PAR1" {
		t.Errorf("parquet upload = %q", got)
	}
	got, ctype := hub.upload("alice/my-set/upload/main/croissant.json")
	if got != `{"@type":"sc:Dataset"}` {
		t.Errorf("manifest upload = %q", got)
	}
	if ctype != "application/ld+json" {
		t.Errorf("manifest content type = %q", ctype)
	}
}

func TestHubRepository_UploadSourceMissing(t *testing.T) {
	hub := newHubServer(t)
	source := newSourceServer(t)
	repo := NewHubRepository(HubConfig{Endpoint: hub.URL})

	files := []FileRef{{Path: "data/x.parquet", SourceURL: source.URL + "/download/zz/parquet"}}
	err := repo.UploadByReference(context.Background(), "hf_token", "alice/my-set", files)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error = %v, want a 404 failure", err)
	}
	if hub.uploadCount() != 0 {
		t.Error("nothing may be uploaded when the source is missing")
	}
}

// memoryStore is an in-memory storage.ObjectStorage.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	ctypes  map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte), ctypes: make(map[string]string)}
}

func (m *memoryStore) EnsureBucket(context.Context) error { return nil }

func (m *memoryStore) Upload(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return err
	}
	if n != size {
		return errors.New("short upload")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	m.ctypes[key] = contentType
	return nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memoryStore) GetURL(key string) string { return "https://cdn.example/" + key }

func TestObjectRepository(t *testing.T) {
	store := newMemoryStore()
	source := newSourceServer(t)
	repo := NewObjectRepository(store, "/repos/")
	ctx := context.Background()

	if err := repo.CreateRepository(ctx, "", "alice/my-set", "cc-by-4.0"); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	var marker repositoryMarker
	if err := json.Unmarshal(store.objects["repos/alice/my-set/.repository.json"], &marker); err != nil {
		t.Fatalf("marker: %v", err)
	}
	if marker.ID != "alice/my-set" || marker.License != "cc-by-4.0" {
		t.Errorf("marker = %+v", marker)
	}

	if err := repo.CreateRepository(ctx, "", "alice/my-set", "cc-by-4.0"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("second create error = %v, want ErrAlreadyExists", err)
	}

	if err := repo.UploadByReference(ctx, "", "alice/my-set", testFiles(source.URL)); err != nil {
		t.Fatalf("UploadByReference: %v", err)
	}
	if got := string(store.objects["repos/alice/my-set/data/my-set.parquet"]); got != "PAR1-rows-PAR1" {
		t.Errorf("parquet object = %q", got)
	}
	if got := store.ctypes["repos/alice/my-set/croissant.json"]; got != "application/ld+json" {
		t.Errorf("manifest content type = %q", got)
	}
}
