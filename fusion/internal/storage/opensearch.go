package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

// OpenSearchSink indexes each record as a document whose id is the event
// key, so replays overwrite rather than duplicate. Documents are sent with
// the bulk API; Flush waits for the pending bulk to complete.
type OpenSearchSink struct {
	client *opensearch.Client
	index  string
	bi     opensearchutil.BulkIndexer

	mu       sync.Mutex
	failures []error
	bulkErrs []error
}

func NewOpenSearchSink(client *opensearch.Client, index string) *OpenSearchSink {
	return &OpenSearchSink{
		client: client,
		index:  index,
	}
}

func (s *OpenSearchSink) Name() string { return "opensearch" }

// Index returns the target index name.
func (s *OpenSearchSink) Index() string { return s.index }

func (s *OpenSearchSink) Append(ctx context.Context, ev event.Event, payload []byte) error {
	if s.bi == nil {
		bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
			Client:     s.client,
			Index:      s.index,
			NumWorkers: 1, // keeps documents in append order
			OnError:    s.recordBulkError,
		})
		if err != nil {
			return fmt.Errorf("failed to create bulk indexer: %w", err)
		}
		s.bi = bi
	}

	return s.bi.Add(ctx, opensearchutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: ev.Key(),
		Body:       bytes.NewReader(payload),
		OnFailure:  s.recordFailure,
	})
}

func (s *OpenSearchSink) recordFailure(_ context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
	if err == nil {
		err = fmt.Errorf("document %s: %s: %s", item.DocumentID, res.Error.Type, res.Error.Reason)
	}
	s.mu.Lock()
	s.failures = append(s.failures, err)
	s.mu.Unlock()
}

// recordBulkError receives request-level failures (transport errors, non-2xx
// bulk responses). Those never reach the per-item callbacks.
func (s *OpenSearchSink) recordBulkError(_ context.Context, err error) {
	s.mu.Lock()
	s.bulkErrs = append(s.bulkErrs, err)
	s.mu.Unlock()
}

func (s *OpenSearchSink) Flush(ctx context.Context) error {
	if s.bi == nil {
		return nil
	}
	bi := s.bi
	s.bi = nil

	closeErr := bi.Close(ctx)

	s.mu.Lock()
	failures, bulkErrs := s.failures, s.bulkErrs
	s.failures, s.bulkErrs = nil, nil
	s.mu.Unlock()

	if closeErr != nil {
		return fmt.Errorf("bulk indexer close: %w", closeErr)
	}
	if len(bulkErrs) > 0 {
		return fmt.Errorf("bulk request failed for %d documents: %w",
			bi.Stats().NumFailed, errors.Join(bulkErrs...))
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d documents failed: %w",
			len(failures), bi.Stats().NumAdded, failures[0])
	}
	return nil
}

func (s *OpenSearchSink) Close() error {
	return s.Flush(context.Background())
}

// newOpenSearchClient creates a client and checks the cluster answers.
func newOpenSearchClient(cfg config.OpenSearchConfig) (*opensearch.Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	// Test connection
	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		body, _ := io.ReadAll(info.Body)
		return nil, errors.New("opensearch returned error: " + info.Status() + " - " + string(body))
	}
	return client, nil
}
