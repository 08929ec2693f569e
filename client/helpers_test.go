package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeTokens struct {
	mu         sync.Mutex
	token      string
	gets       int
	refreshes  int
	refreshErr error
}

func newFakeTokens() *fakeTokens { return &fakeTokens{token: "token-1"} }

func (f *fakeTokens) GetAccessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.token, nil
}

func (f *fakeTokens) ForceRefresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	f.token = fmt.Sprintf("token-%d", f.refreshes+1)
	return f.token, nil
}

func (f *fakeTokens) counts() (gets, refreshes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.refreshes
}

// entityPage renders {"<key>": [n records]} with ids "<prefix>-<i>".
func entityPage(key, prefix string, n int) []byte {
	recs := make([]map[string]any, n)
	for i := range recs {
		recs[i] = map[string]any{"ID": fmt.Sprintf("%s-%d", prefix, i), "Amount": i}
	}
	b, _ := json.Marshal(map[string]any{"Id": "resp", "Status": "OK", key: recs})
	return b
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *fakeTokens, clockwork.FakeClock) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := newFakeTokens()
	clock := clockwork.NewFakeClock()
	f := NewFetcher(server.URL, tokens, server.Client())
	f.Clock = clock
	return f, tokens, clock
}

// async runs fn in the background so the test can drive the fake clock.
func async[T any](fn func() (T, error)) <-chan result[T] {
	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{v, err}
	}()
	return ch
}

type result[T any] struct {
	val T
	err error
}

func await[T any](t *testing.T, ch <-chan result[T]) (T, error) {
	t.Helper()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not finish")
		var zero T
		return zero, nil
	}
}

// recorder collects values from handler goroutines.
type recorder struct {
	mu   sync.Mutex
	vals []string
}

func (r *recorder) add(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals = append(r.vals, v)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.vals...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.vals)
}
