package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextBatchSize(t *testing.T) {
	tests := []struct {
		name                               string
		attempted, accepted, needed, target int
		want                               int
	}{
		{"nothing needed", 100, 20, 0, 20, 0},
		{"no history yet", 0, 0, 20, 20, 20},
		{"hostile ground over-provisions", 50, 5, 15, 20, 40},
		{"high acceptance trims to need", 4, 3, 6, 20, 13},
		{"high acceptance floors at ten", 4, 3, 1, 20, 10},
		{"middling rate repeats target", 20, 10, 10, 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBatchSize(tt.attempted, tt.accepted, tt.needed, tt.target)
			require.Equal(t, tt.want, got)
		})
	}
}
