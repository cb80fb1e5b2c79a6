package messaging

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage("geyser.accounts", []byte("payload"),
		WithHeader(HeaderMsgID, "account:Ldp:10:4"),
		WithHeader(HeaderRunID, "run-1"),
	)

	if msg.Subject != "geyser.accounts" {
		t.Errorf("expected Subject 'geyser.accounts', got %q", msg.Subject)
	}
	if string(msg.Data) != "payload" {
		t.Errorf("expected Data 'payload', got %q", string(msg.Data))
	}
	if got := msg.Header(HeaderMsgID); got != "account:Ldp:10:4" {
		t.Errorf("expected msg id header, got %q", got)
	}
	if got := msg.Header(HeaderRunID); got != "run-1" {
		t.Errorf("expected run id header, got %q", got)
	}
}

func TestNewMessage_NoHeaders(t *testing.T) {
	msg := NewMessage("geyser.transactions", nil)

	if msg.Metadata != nil {
		t.Errorf("expected nil Metadata, got %v", msg.Metadata)
	}
	if got := msg.Header(HeaderKind); got != "" {
		t.Errorf("expected empty header, got %q", got)
	}
}

func TestWithHeader(t *testing.T) {
	tests := []struct {
		name     string
		headers  []struct{ key, value string }
		expected map[string]string
	}{
		{
			name:     "single header",
			headers:  []struct{ key, value string }{{"X-Custom", "test"}},
			expected: map[string]string{"X-Custom": "test"},
		},
		{
			name: "overwrite header",
			headers: []struct{ key, value string }{
				{"X-Key", "original"},
				{"X-Key", "updated"},
			},
			expected: map[string]string{"X-Key": "updated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &publishOptions{}
			for _, h := range tt.headers {
				WithHeader(h.key, h.value)(opts)
			}

			if len(opts.headers) != len(tt.expected) {
				t.Errorf("expected %d headers, got %d", len(tt.expected), len(opts.headers))
			}
			for k, v := range tt.expected {
				if opts.headers[k] != v {
					t.Errorf("expected header %q=%q, got %q", k, v, opts.headers[k])
				}
			}
		})
	}
}
