// Package remotestore implements metadata.Store against an external
// metadata microservice over HTTP, for deployments that point
// METADATA_STORE_URL (or the legacy MONGO_URI alias) at a real document
// store rather than running in-process. It is built the same way the
// teacher lineage talks to its storage nodes: a shared *http.Client,
// exponential backoff around each call, and one circuit breaker per
// store so a degraded backend fails fast instead of queuing latency on
// every chunk request.
package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"resumable-upload-core/pkg/metadata"
)

// Config mirrors a typical pooled-HTTP-client shape: base URL, timeout,
// connection pool sizing, and retry policy.
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	RetryAttempts       int
	RetryDelay          time.Duration
}

// DefaultConfig returns sane pool/timeout/retry defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:             strings.TrimSuffix(baseURL, "/"),
		Timeout:             5 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		RetryAttempts:       3,
		RetryDelay:          200 * time.Millisecond,
	}
}

// Store is an HTTP-backed metadata.Store.
type Store struct {
	cfg     Config
	client  *http.Client
	backoff func() backoff.BackOff
	cb      *gobreaker.CircuitBreaker
}

// New builds a remote store client against cfg.BaseURL.
func New(cfg Config) *Store {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	cbSettings := gobreaker.Settings{
		Name:        "metadata-store",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}

	return &Store{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = time.Duration(cfg.RetryAttempts) * cfg.RetryDelay
			return b
		},
		cb: gobreaker.NewCircuitBreaker(cbSettings),
	}
}

var _ metadata.Store = (*Store)(nil)

// do executes one HTTP round trip through the circuit breaker, retrying
// transient failures with exponential backoff. notFound/conflict are
// treated as permanent (non-retryable) outcomes reported back to the
// caller as ordinary errors, not breaker trips.
func (s *Store) do(ctx context.Context, method, path string, body any, out any) error {
	var callErr error
	_, err := s.cb.Execute(func() (any, error) {
		callErr = s.executeWithRetry(ctx, method, path, body, out)
		if errors.Is(callErr, metadata.ErrSessionNotFound) || errors.Is(callErr, metadata.ErrSessionExists) {
			return nil, nil
		}
		return nil, callErr
	})
	if err != nil {
		return err
	}
	return callErr
}

func (s *Store) executeWithRetry(ctx context.Context, method, path string, body any, out any) error {
	operation := func() error {
		var reqBody io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("marshal request: %w", err))
			}
			reqBody = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("metadata store request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(metadata.ErrSessionNotFound)
		case resp.StatusCode == http.StatusConflict:
			return backoff.Permanent(metadata.ErrSessionExists)
		case resp.StatusCode >= 500:
			return fmt.Errorf("metadata store returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			data, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("metadata store rejected request: %s", string(data)))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	return backoff.Retry(operation, s.backoff())
}

func (s *Store) PutSessionIfAbsent(ctx context.Context, session metadata.UploadSession) error {
	return s.do(ctx, http.MethodPost, "/sessions", session, nil)
}

func (s *Store) GetSession(ctx context.Context, id string) (metadata.UploadSession, error) {
	var out metadata.UploadSession
	err := s.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

type casRequest struct {
	From  metadata.Status      `json:"from"`
	To    metadata.Status      `json:"to"`
	Patch metadata.StatusPatch `json:"patch"`
}

type casResponse struct {
	Swapped bool `json:"swapped"`
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, from, to metadata.Status, patch metadata.StatusPatch) (bool, error) {
	var out casResponse
	err := s.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/status", casRequest{From: from, To: to, Patch: patch}, &out)
	if err != nil {
		return false, err
	}
	return out.Swapped, nil
}

func (s *Store) PutChunksIfAbsent(ctx context.Context, chunks []metadata.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(chunks[0].UploadID)+"/chunks", chunks, nil)
}

func (s *Store) SetChunkReceived(ctx context.Context, uploadID string, index int) error {
	path := fmt.Sprintf("/sessions/%s/chunks/%d/received", url.PathEscape(uploadID), index)
	return s.do(ctx, http.MethodPost, path, nil, nil)
}

func (s *Store) GetChunk(ctx context.Context, uploadID string, index int) (metadata.ChunkRecord, error) {
	var out metadata.ChunkRecord
	path := fmt.Sprintf("/sessions/%s/chunks/%d", url.PathEscape(uploadID), index)
	err := s.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (s *Store) ListChunks(ctx context.Context, uploadID string) ([]metadata.ChunkRecord, error) {
	var out []metadata.ChunkRecord
	err := s.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(uploadID)+"/chunks", nil, &out)
	return out, err
}

type countResponse struct {
	Count int `json:"count"`
}

func (s *Store) CountReceived(ctx context.Context, uploadID string) (int, error) {
	var out countResponse
	err := s.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(uploadID)+"/chunks/count", nil, &out)
	return out.Count, err
}

func sweepQuery(statusIn []metadata.Status, olderThan time.Time) string {
	v := url.Values{}
	for _, st := range statusIn {
		v.Add("status", string(st))
	}
	v.Set("older_than", strconv.FormatInt(olderThan.Unix(), 10))
	return "?" + v.Encode()
}

func (s *Store) ListSessionsWhere(ctx context.Context, statusIn []metadata.Status, olderThan time.Time) ([]metadata.UploadSession, error) {
	var out []metadata.UploadSession
	err := s.do(ctx, http.MethodGet, "/sessions"+sweepQuery(statusIn, olderThan), nil, &out)
	return out, err
}

func (s *Store) DeleteSessionsWhere(ctx context.Context, statusIn []metadata.Status, olderThan time.Time) error {
	return s.do(ctx, http.MethodDelete, "/sessions"+sweepQuery(statusIn, olderThan), nil, nil)
}
