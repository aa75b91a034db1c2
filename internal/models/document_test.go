package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentCanTransitionToForwardPath(t *testing.T) {
	d := &Document{State: DocumentStatePending}
	assert.True(t, d.CanTransitionTo(DocumentStateProcessing))

	d.State = DocumentStateProcessing
	assert.True(t, d.CanTransitionTo(DocumentStateProcessing))
	assert.True(t, d.CanTransitionTo(DocumentStateCompleted))
	assert.True(t, d.CanTransitionTo(DocumentStateFailed))
}

func TestDocumentCompletedIsTerminalExceptSameStateNoOp(t *testing.T) {
	d := &Document{State: DocumentStateCompleted}
	assert.True(t, d.CanTransitionTo(DocumentStateCompleted))
	assert.False(t, d.CanTransitionTo(DocumentStateProcessing))
	assert.False(t, d.CanTransitionTo(DocumentStateFailed))
	assert.False(t, d.CanTransitionTo(DocumentStatePending))
}

func TestDocumentFailedMayBeRetriedIntoProcessing(t *testing.T) {
	d := &Document{State: DocumentStateFailed}
	assert.True(t, d.CanTransitionTo(DocumentStateProcessing))
	assert.True(t, d.CanTransitionTo(DocumentStateFailed))
	assert.False(t, d.CanTransitionTo(DocumentStateCompleted))
	assert.False(t, d.CanTransitionTo(DocumentStatePending))
}

func TestDocumentIsTerminal(t *testing.T) {
	assert.False(t, (&Document{State: DocumentStatePending}).IsTerminal())
	assert.False(t, (&Document{State: DocumentStateProcessing}).IsTerminal())
	assert.True(t, (&Document{State: DocumentStateCompleted}).IsTerminal())
	assert.True(t, (&Document{State: DocumentStateFailed}).IsTerminal())
}
