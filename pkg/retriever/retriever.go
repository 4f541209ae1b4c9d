// Package retriever wraps an external vector store with the retry policy
// §4.A requires: up to 3 attempts, 200ms backoff doubling to a 2s cap, with
// the ErrUnavailable sentinel marking the transient case the retry
// applies to. Everything else propagates immediately.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/praetorian-inc/ragpref/pkg/pipeline"
	"github.com/praetorian-inc/ragpref/pkg/retry"
)

// ErrUnavailable marks a transient retrieval failure eligible for retry.
// A VectorStore implementation should wrap it with %w so errors.Is still
// matches after decoration.
var ErrUnavailable = errors.New("retriever: store unavailable")

// VectorStore is the out-of-scope collaborator §6 states the interface
// for: given a question and a fan-out width K, return up to K passages
// ordered by descending score.
type VectorStore interface {
	Query(ctx context.Context, question string, k int) ([]pipeline.Passage, error)
}

// Client retrieves context passages for a question, retrying transient
// VectorStore failures with the §4.A backoff schedule.
type Client struct {
	store    VectorStore
	retryCfg retry.Config
}

// New builds a Client around a VectorStore.
func New(store VectorStore) *Client {
	cfg := retry.RetrievalConfig()
	cfg.RetryableFunc = func(err error) bool { return errors.Is(err, ErrUnavailable) }
	return &Client{store: store, retryCfg: cfg}
}

// Retrieve fetches up to k passages for question, retrying ErrUnavailable
// per §4.A and surfacing any other error (or a final retry exhaustion)
// immediately to the caller.
func (c *Client) Retrieve(ctx context.Context, question string, k int) ([]pipeline.Passage, error) {
	var passages []pipeline.Passage
	err := retry.Do(ctx, c.retryCfg, func() error {
		p, err := c.store.Query(ctx, question, k)
		if err != nil {
			return err
		}
		passages = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("retriever: retrieve failed: %w", err)
	}
	return passages, nil
}
