package whitebox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAverage(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    float64
		wantErr bool
	}{
		{name: "image average", out: "Image minimum: 0\nImage average: 3.5\n", want: 3.5},
		{name: "mean key", out: "Mean: 2\n", want: 2},
		{name: "leading noise", out: "*****\n* Welcome *\nImage average: -0.25\nElapsed Time: 0.1s", want: -0.25},
		{name: "missing", out: "Image minimum: 0\n", wantErr: true},
		{name: "garbage value", out: "Image average: n/a\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAverage([]byte(tt.out))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseToolList(t *testing.T) {
	tools := parseToolList([]byte("All 3 Tools:\nD8Pointer: Calculates a D8 flow pointer\nSink: Identifies sinks\n\nWatershed: Identifies watersheds\n"))
	assert.Len(t, tools, 3)
	assert.Contains(t, tools, "D8Pointer")
	assert.NotContains(t, tools, "All 3 Tools")
}
