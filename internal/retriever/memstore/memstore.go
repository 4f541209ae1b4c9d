// Package memstore is an in-memory VectorStore so the pipeline is runnable
// without a real embedding/vector-store deployment, grounded on the
// teacher's internal/generators/test fakes pattern: deterministic,
// dependency-free stand-ins that satisfy a production interface.
package memstore

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// Document is one passage available for retrieval, keyed by SourceID.
type Document struct {
	SourceID string
	Text     string
}

// Store is a bag-of-words cosine-similarity VectorStore over an in-memory
// document set. It has no external dependency and is deterministic given
// its document set, satisfying §4.A's determinism guarantee.
type Store struct {
	docs []Document
}

// New builds a Store over docs.
func New(docs ...Document) *Store {
	return &Store{docs: docs}
}

// Add appends a document to the store.
func (s *Store) Add(doc Document) {
	s.docs = append(s.docs, doc)
}

// Query returns up to k passages ordered by descending bag-of-words cosine
// similarity to question.
func (s *Store) Query(_ context.Context, question string, k int) ([]pipeline.Passage, error) {
	qv := termVector(question)

	scored := make([]pipeline.Passage, 0, len(s.docs))
	for _, doc := range s.docs {
		score := cosine(qv, termVector(doc.Text))
		scored = append(scored, pipeline.Passage{Text: doc.Text, SourceID: doc.SourceID, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func termVector(text string) map[string]float64 {
	v := make(map[string]float64)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		v[tok]++
	}
	return v
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for term, av := range a {
		dot += av * b[term]
		na += av * av
	}
	for _, bv := range b {
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
