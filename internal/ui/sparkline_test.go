package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparkline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		data  []float64
		width int
		want  string
	}{
		{"no samples pads the full width", nil, 4, "▁▁▁▁"},
		{"short history is left padded", []float64{1, 2, 4, 8}, 6, "▁▁▁▂▄█"},
		{"largest shown sample sets the scale", []float64{8, 1, 2, 4}, 3, "▂▄█"},
		{"idle burn stays flat", []float64{0, 0, 0}, 3, "▁▁▁"},
		{"negative samples floor at the lowest block", []float64{-5, 10}, 2, "▁█"},
		{"all negative never divides", []float64{-3, -1}, 2, "▁▁"},
		{"steady rate is full height", []float64{5, 5, 5}, 3, "███"},
		{"zero width", []float64{1, 2, 3}, 0, ""},
		{"negative width", []float64{1}, -1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Sparkline(tt.data, tt.width)
			assert.Equal(t, tt.want, got)
			if tt.width > 0 {
				assert.Len(t, []rune(got), tt.width)
			}
		})
	}
}

func TestSparkline_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	data := []float64{3, 1, 2}
	Sparkline(data, 2)
	assert.Equal(t, []float64{3, 1, 2}, data)
}
