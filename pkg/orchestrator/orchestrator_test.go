package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorybus "github.com/praetorian-inc/ragpref/internal/bus/memory"
	"github.com/praetorian-inc/ragpref/internal/llm/testgen"
	"github.com/praetorian-inc/ragpref/internal/retriever/memstore"
	"github.com/praetorian-inc/ragpref/pkg/bus"
	"github.com/praetorian-inc/ragpref/pkg/generator"
	"github.com/praetorian-inc/ragpref/pkg/orchestrator"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
	"github.com/praetorian-inc/ragpref/pkg/registry"
	"github.com/praetorian-inc/ragpref/pkg/retriever"
)

func newStore() *memstore.Store {
	s := memstore.New()
	s.Add(memstore.Document{SourceID: "doc-1", Text: "Retrieval augmented generation combines a retriever with a generator."})
	s.Add(memstore.Document{SourceID: "doc-2", Text: "DPO trains a policy directly from preference pairs."})
	return s
}

func TestOrchestrator_AskMulti_PublishesOnePerCandidate(t *testing.T) {
	b := memorybus.New(5)
	defer b.Close()

	var received []pipeline.AnswerGeneratedPayload
	done := make(chan struct{})
	count := 0
	require.NoError(t, b.Subscribe(context.Background(), bus.TopicAnswerGenerated, "test", func(_ context.Context, d bus.Delivery) error {
		p := d.Envelope.Payload.(pipeline.AnswerGeneratedPayload)
		received = append(received, p)
		count++
		if count == 3 {
			close(done)
		}
		return nil
	}))

	completer, err := testgen.NewEcho(nil)
	require.NoError(t, err)
	r := retriever.New(newStore())
	g := generator.New(completer)
	o := orchestrator.New(r, g, b, orchestrator.DefaultConfig(), nil)

	resp, err := o.AskMulti(context.Background(), "what is RAG?")
	require.NoError(t, err)
	assert.Len(t, resp.Candidates, 3)
	assert.NotEmpty(t, resp.BatchID)
	assert.NotEmpty(t, resp.CorrelationID)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("did not receive all published events")
	}
	assert.Len(t, received, 3)
	for _, p := range received {
		assert.Equal(t, 3, p.ExpectedCount)
		assert.Equal(t, resp.BatchID, p.BatchID)
	}
}

func TestOrchestrator_AskMulti_AllCandidatesFail(t *testing.T) {
	b := memorybus.New(5)
	defer b.Close()

	// An empty canned response makes every candidate trip ErrRefused.
	completer, err := testgen.NewCanned(registry.Config{"response": ""})
	require.NoError(t, err)

	r := retriever.New(newStore())
	g := generator.New(completer)
	o := orchestrator.New(r, g, b, orchestrator.DefaultConfig(), nil)

	_, err = o.AskMulti(context.Background(), "what is RAG?")
	assert.ErrorIs(t, err, orchestrator.ErrAllCandidatesFailed)
}
