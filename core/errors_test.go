package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsShutdown(t *testing.T) {
	connErr := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "shutdown", err: NewShutdownError(connErr, "rolling back"), want: true},
		{name: "wrapped", err: errors.Wrap(NewShutdownError(nil, "rolling back"), "finishing exam"), want: true},
		{name: "other", err: connErr},
		{name: "validation", err: NewValidationError(connErr)},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsShutdown(tt.err))
		})
	}

	assert.Equal(t, "rolling back: connection reset", NewShutdownError(connErr, "rolling back").Error())
	assert.Equal(t, "rolling back", NewShutdownError(nil, "rolling back").Error())
}
