package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
)

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>leads</Name>
  <Prefix>source/</Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>2</MaxKeys>
  <IsTruncated>true</IsTruncated>
  <NextContinuationToken>next-page</NextContinuationToken>
  <Contents><Key>source/crm_event_L2.json</Key><LastModified>2026-03-01T12:00:00.000Z</LastModified><ETag>"a"</ETag><Size>2</Size><StorageClass>STANDARD</StorageClass></Contents>
  <Contents><Key>source/crm_event_L3.json</Key><LastModified>2026-03-01T12:00:00.000Z</LastModified><ETag>"b"</ETag><Size>2</Size><StorageClass>STANDARD</StorageClass></Contents>
</ListBucketResult>`

func TestMinIOListStopsAtLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []url.Values
	)
	// Every page claims more results follow.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query())
		mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		_, _ = fmt.Fprint(w, listPage)
	}))
	defer server.Close()

	store, err := NewMinIOStore(config.StorageConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "test",
		SecretKey: "test-secret",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys, err := store.List(ctx, "leads", "source/", "source/crm_event_L1.json", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"source/crm_event_L2.json", "source/crm_event_L3.json"}, keys)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, queries)
	first := queries[0]
	assert.Equal(t, "source/", first.Get("prefix"))
	assert.Equal(t, "source/crm_event_L1.json", first.Get("start-after"))
	assert.Equal(t, "2", first.Get("max-keys"))
}
