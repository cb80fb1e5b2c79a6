package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
)

// fakeOpenSearch answers the cluster info and bulk endpoints.
type fakeOpenSearch struct {
	mu      sync.Mutex
	paths   []string
	ids     []string
	docs    []string
	failIDs map[string]bool
	status  int
}

func (f *fakeOpenSearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/" {
		fmt.Fprint(w, `{"name":"node-1","cluster_name":"test","version":{"distribution":"opensearch","number":"2.11.0"}}`)
		return
	}
	if !strings.HasSuffix(r.URL.Path, "/_bulk") {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	status := f.status
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":"unavailable"}`)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)

	type item struct {
		Status int            `json:"status"`
		ID     string         `json:"_id"`
		Error  map[string]any `json:"error,omitempty"`
	}
	var items []map[string]item
	hasErrors := false

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var meta map[string]struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !scanner.Scan() {
			break
		}
		id := meta["index"].ID
		f.ids = append(f.ids, id)
		f.docs = append(f.docs, scanner.Text())

		it := item{Status: http.StatusCreated, ID: id}
		if f.failIDs[id] {
			hasErrors = true
			it.Status = http.StatusBadRequest
			it.Error = map[string]any{"type": "mapper_parsing_exception", "reason": "failed to parse"}
		}
		items = append(items, map[string]item{"index": it})
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"took":   1,
		"errors": hasErrors,
		"items":  items,
	})
}

func newFakeOpenSearch(t *testing.T, fake *fakeOpenSearch) *opensearch.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := newOpenSearchClient(config.OpenSearchConfig{URL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestOpenSearchSink_IndexesWithKeyAsID(t *testing.T) {
	fake := &fakeOpenSearch{}
	client := newFakeOpenSearch(t, fake)
	ctx := context.Background()

	sink := NewOpenSearchSink(client, "fusion-accounts")
	assert.Equal(t, "opensearch", sink.Name())
	assert.Equal(t, "fusion-accounts", sink.Index())

	first := testAccount(10)
	second := testAccount(11)
	require.NoError(t, sink.Append(ctx, first, []byte(`{"kind":"account","n":1}`)))
	require.NoError(t, sink.Append(ctx, second, []byte(`{"kind":"account","n":2}`)))
	require.NoError(t, sink.Flush(ctx))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{first.Key(), second.Key()}, fake.ids)
	assert.Equal(t, []string{`{"kind":"account","n":1}`, `{"kind":"account","n":2}`}, fake.docs)
	require.NotEmpty(t, fake.paths)
	assert.Equal(t, "/fusion-accounts/_bulk", fake.paths[0])
}

func TestOpenSearchSink_FlushWithoutAppends(t *testing.T) {
	sink := NewOpenSearchSink(newFakeOpenSearch(t, &fakeOpenSearch{}), "fusion-transactions")
	assert.NoError(t, sink.Flush(context.Background()))
	assert.NoError(t, sink.Close())
}

func TestOpenSearchSink_ItemFailure(t *testing.T) {
	bad := testAccount(12)
	fake := &fakeOpenSearch{failIDs: map[string]bool{bad.Key(): true}}
	sink := NewOpenSearchSink(newFakeOpenSearch(t, fake), "fusion-accounts")
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, testAccount(10), []byte(`{}`)))
	require.NoError(t, sink.Append(ctx, bad, []byte(`{}`)))

	err := sink.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents failed")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")

	// The next cycle starts clean.
	require.NoError(t, sink.Append(ctx, testAccount(13), []byte(`{}`)))
	assert.NoError(t, sink.Flush(ctx))
}

func TestOpenSearchSink_ServerError(t *testing.T) {
	fake := &fakeOpenSearch{}
	sink := NewOpenSearchSink(newFakeOpenSearch(t, fake), "fusion-accounts")
	fake.mu.Lock()
	fake.status = http.StatusInternalServerError
	fake.mu.Unlock()

	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, testAccount(10), []byte(`{}`)))

	err := sink.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk request failed for 1 documents")

	// Nothing from the failed cycle leaks into the next one.
	fake.mu.Lock()
	fake.status = 0
	fake.mu.Unlock()
	require.NoError(t, sink.Append(ctx, testAccount(11), []byte(`{}`)))
	assert.NoError(t, sink.Flush(ctx))
}

func TestNewOpenSearchClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newOpenSearchClient(config.OpenSearchConfig{URL: url})
	assert.Error(t, err)
}
