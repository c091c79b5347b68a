package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agentvault/pkg/platform/sentinel"
)

// WalrusMirror talks to a walrus-compatible blob store: PUT a blob to the
// publisher, read it back from the aggregator by content id. A repeated
// write of identical content comes back as "alreadyCertified" with the
// original id, which gives Store its idempotence.
type WalrusMirror struct {
	publisherURL  string
	aggregatorURL string
	storeEpochs   int
	client        *http.Client
}

// NewWalrusMirror builds a mirror against the given endpoints. storeEpochs
// is how long the publisher should retain the blob.
func NewWalrusMirror(publisherURL, aggregatorURL string, storeEpochs int) *WalrusMirror {
	if storeEpochs <= 0 {
		storeEpochs = 5
	}
	return &WalrusMirror{
		publisherURL:  publisherURL,
		aggregatorURL: aggregatorURL,
		storeEpochs:   storeEpochs,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// storeResponse covers both publisher outcomes for a blob write.
type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

func (m *WalrusMirror) Store(ctx context.Context, entry Entry) (string, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}

	url := fmt.Sprintf("%s/v1/blobs?epochs=%d", m.publisherURL, m.storeEpochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build blob request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("store blob: %w: status %d", sentinel.ErrUnavailable, resp.StatusCode)
	}

	var parsed storeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode blob response: %w", err)
	}
	switch {
	case parsed.NewlyCreated != nil && parsed.NewlyCreated.BlobObject.BlobID != "":
		return parsed.NewlyCreated.BlobObject.BlobID, nil
	case parsed.AlreadyCertified != nil && parsed.AlreadyCertified.BlobID != "":
		return parsed.AlreadyCertified.BlobID, nil
	default:
		return "", fmt.Errorf("blob response carried no content id")
	}
}

func (m *WalrusMirror) Fetch(ctx context.Context, contentID string) (Entry, error) {
	url := fmt.Sprintf("%s/v1/blobs/%s", m.aggregatorURL, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("fetch blob: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Entry{}, sentinel.ErrNotFound
	default:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return Entry{}, fmt.Errorf("fetch blob: %w: status %d", sentinel.ErrUnavailable, resp.StatusCode)
	}

	var entry Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return Entry{}, fmt.Errorf("decode blob: %w", err)
	}
	return entry, nil
}

// contentID derives a deterministic id for in-process mirrors, matching the
// content-addressed contract without a real publisher.
func contentID(entry Entry) (string, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
