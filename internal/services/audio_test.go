package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAudioDuration(t *testing.T) {
	assert.NoError(t, validateAudioDuration(30, 60))
	assert.Error(t, validateAudioDuration(61, 60))
	assert.NoError(t, validateAudioDuration(3600, 0), "a zero limit means unbounded")
}
