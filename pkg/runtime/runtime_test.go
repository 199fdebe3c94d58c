package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContainerState(t *testing.T) {
	tests := []struct {
		input string
		want  ContainerState
	}{
		{"running", StateRunning},
		{"Running", StateRunning},
		{"created", StateCreated},
		{"paused", StatePaused},
		{"restarting", StateRestarting},
		{"exited", StateExited},
		{"dead", StateDead},
		{"", StateUnknown},
		{"something-else", StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContainerState(tt.input))
		})
	}
}

func TestContainerStateGone(t *testing.T) {
	assert.True(t, StateExited.Gone())
	assert.True(t, StateDead.Gone())
	assert.False(t, StateRunning.Gone())
	assert.False(t, StateCreated.Gone())
	assert.False(t, StateUnknown.Gone())
}
