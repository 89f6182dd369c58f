package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/timmy/hubexport/internal/domain"
)

// memoryKV is an in-memory KeyValueStore.
type memoryKV struct {
	mu    sync.Mutex
	data  map[string]string
	takes map[string]int
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string), takes: make(map[string]int)}
}

func (m *memoryKV) Put(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memoryKV) Take(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	delete(m.data, key)
	m.takes[key]++
	return v, nil
}

func (m *memoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memoryKV) takeCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takes[key]
}

// fakePopup is a Popup the test closes by hand.
type fakePopup struct {
	once      sync.Once
	closed    chan struct{}
	mu        sync.Mutex
	closeCall int
}

func newFakePopup() *fakePopup { return &fakePopup{closed: make(chan struct{})} }

func (p *fakePopup) Closed() <-chan struct{} { return p.closed }

func (p *fakePopup) Close() error {
	p.mu.Lock()
	p.closeCall++
	p.mu.Unlock()
	p.userClose()
	return nil
}

func (p *fakePopup) userClose() { p.once.Do(func() { close(p.closed) }) }

func (p *fakePopup) closeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCall
}

// fakeOpener records the authorization URL and hands it to onOpen.
type fakeOpener struct {
	popup  *fakePopup
	onOpen func(authURL string, popup *fakePopup)
}

func (o *fakeOpener) Open(_ context.Context, authURL string, _ Rect) (Popup, error) {
	o.popup = newFakePopup()
	if o.onOpen != nil {
		go o.onOpen(authURL, o.popup)
	}
	return o.popup, nil
}

// providerServer fakes the token and userinfo endpoints.
type providerServer struct {
	*httptest.Server
	mu       sync.Mutex
	forms    []map[string]string
	status   int
	username string
}

func newProviderServer(t *testing.T) *providerServer {
	t.Helper()
	p := &providerServer{status: http.StatusOK, username: "alice"}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		p.mu.Lock()
		p.forms = append(p.forms, form)
		status := p.status
		p.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "hf_token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/oauth/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hf_token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		p.mu.Lock()
		name := p.username
		p.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"preferred_username": name})
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *providerServer) setStatus(status int) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *providerServer) setUsername(name string) {
	p.mu.Lock()
	p.username = name
	p.mu.Unlock()
}

func (p *providerServer) tokenForms() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]string(nil), p.forms...)
}
