package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/models"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

type fakeDocumentResolver struct {
	callsBeforeFound int
	calls            int
	doc              *models.Document
	err              error
}

func (f *fakeDocumentResolver) FindDocumentByObjectKey(_ context.Context, _ string) (*models.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.callsBeforeFound {
		return nil, nil
	}
	return f.doc, nil
}

func newTestDispatcher(t *testing.T, resolver documentResolver) *QueueDispatcher {
	t.Helper()
	return NewQueueDispatcher(nil, resolver, nil, nil, config.QueueConfig{
		DispatchDeadlineSec: 5,
		ResolveMaxAttempts:  3,
		ResolveBaseDelayMs:  1,
	}, testLogger(t))
}

func TestResolveDocumentFoundImmediately(t *testing.T) {
	resolver := &fakeDocumentResolver{doc: &models.Document{ID: uuid.New(), ObjectKey: "k"}}
	d := newTestDispatcher(t, resolver)

	doc, err := d.resolveDocument(t.Context(), "k")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 1, resolver.calls)
}

func TestResolveDocumentRetriesUntilFound(t *testing.T) {
	resolver := &fakeDocumentResolver{callsBeforeFound: 2, doc: &models.Document{ID: uuid.New(), ObjectKey: "k"}}
	d := newTestDispatcher(t, resolver)

	doc, err := d.resolveDocument(t.Context(), "k")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 3, resolver.calls)
}

func TestResolveDocumentGivesUpAfterMaxAttempts(t *testing.T) {
	resolver := &fakeDocumentResolver{callsBeforeFound: 99}
	d := newTestDispatcher(t, resolver)

	doc, err := d.resolveDocument(t.Context(), "k")
	require.NoError(t, err)
	assert.Nil(t, doc, "exhausting retries without finding a row is a drop, not an error")
	assert.Equal(t, 3, resolver.calls)
}

func TestResolveDocumentPropagatesPersistentError(t *testing.T) {
	resolver := &fakeDocumentResolver{err: errors.New("db down")}
	d := newTestDispatcher(t, resolver)

	_, err := d.resolveDocument(t.Context(), "k")
	assert.Error(t, err)
}

func TestHandleObjectFinalizedDropsNonRetriableResolutionError(t *testing.T) {
	resolver := &fakeDocumentResolver{err: pkgerrors.Validation("object key column exceeds database limit", nil)}
	d := newTestDispatcher(t, resolver)

	err := d.handleObjectFinalized(t.Context(), "", []byte(`{"bucket":"","name":"k.pdf"}`))
	assert.NoError(t, err, "a non-retriable resolution failure is acknowledged, not redelivered")
}

func TestHandleObjectFinalizedRedeliversOnRetriableResolutionError(t *testing.T) {
	resolver := &fakeDocumentResolver{err: errors.New("db down")}
	d := newTestDispatcher(t, resolver)

	err := d.handleObjectFinalized(t.Context(), "", []byte(`{"bucket":"","name":"k.pdf"}`))
	assert.Error(t, err, "a plain error defaults to retriable and is left for redelivery")
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "a", coalesce("a", "b"))
	assert.Equal(t, "b", coalesce("", "b"))
	assert.Equal(t, "", coalesce("", ""))
}
