package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"not found", NotFound("deployment", "web"), ErrNotFound},
		{"already exists", AlreadyExists("deployment", "web"), ErrAlreadyExists},
		{"already bound", AlreadyBound("p1", "node-a"), ErrAlreadyBound},
		{"invalid spec", InvalidSpec("replicas cannot be negative"), ErrInvalidSpec},
		{"illegal transition", IllegalTransition("p1", "terminated", "running"), ErrIllegalTransition},
		{"evicted", Evicted("node-a"), ErrEvicted},
		{"runtime failure", RuntimeFailure("create", errors.New("boom")), ErrRuntimeFailure},
		{"unavailable", Unavailable("http://master", errors.New("refused")), ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("while reconciling: %w", NotFound("pod", "p1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAlreadyExists)
}

func TestMessagesCarryContext(t *testing.T) {
	err := NotFound("deployment", "web")
	assert.Contains(t, err.Error(), "deployment")
	assert.Contains(t, err.Error(), "web")
}
