package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Shape(t *testing.T) {
	s, err := New([]string{"A", "B"}, 3, 10, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, s.NumTrajectories())
	assert.Equal(t, 11, s.NumSamples())
	assert.Equal(t, 2, s.NumSpecies())
	assert.Equal(t, 0.0, s.Timeline[0])
	assert.Equal(t, 10.0, s.Timeline[10])
	assert.False(t, s.Complete())
}

func TestNumSamples_RoundsIncrement(t *testing.T) {
	n, err := NumSamples(1, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = NumSamples(1, 0)
	assert.Error(t, err)
	_, err = NumSamples(-1, 0.1)
	assert.Error(t, err)
}

func TestRecord_RowsAreDisjoint(t *testing.T) {
	s, err := New([]string{"A", "B"}, 2, 2, 1)
	require.NoError(t, err)

	s.Record(0, 2, []float64{1, 2, -0.5})
	s.Record(1, 0, []float64{3, 4})

	assert.Equal(t, []float64{1, 2}, s.Sample(0, 2))
	assert.Equal(t, []float64{3, 4}, s.Sample(1, 0))
	assert.Equal(t, []float64{0, 0}, s.Sample(1, 1))
	assert.Equal(t, []float64{0, 0, 2}, s.Series(0, 1))

	// Appending to a sample must not bleed into its neighbour.
	row := append(s.Sample(0, 0), 99)
	assert.Len(t, row, 3)
	assert.Equal(t, 0.0, s.Sample(0, 1)[0])
}

func TestComplete(t *testing.T) {
	s, err := New([]string{"A"}, 2, 1, 1)
	require.NoError(t, err)

	s.Completed[0] = true
	assert.False(t, s.Complete())
	assert.Equal(t, 1, s.CompletedCount())

	s.Completed[1] = true
	assert.True(t, s.Complete())

	s.Canceled = true
	assert.False(t, s.Complete())
}
