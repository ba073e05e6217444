package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountsTowardWorkload(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusOpen, true},
		{StatusAssigned, true},
		{StatusInProgress, true},
		{StatusResolved, false},
		{StatusClosed, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.CountsTowardWorkload())
		})
	}
}
