package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinytelemetry/auxreport/internal/model"
)

func TestCompute(t *testing.T) {
	s := Compute([]model.Value{model.Some(3), model.Missing(), model.Some(1), model.Some(8)})

	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 8.0, s.Max)
	assert.Equal(t, 4.0, s.Average)
	assert.Equal(t, 12.0, s.Total)
	assert.Equal(t, 3, s.Count)
}

func TestCompute_EmptyIsZero(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, Summary{}, Compute(nil))
	})

	t.Run("only missing", func(t *testing.T) {
		s := Compute([]model.Value{model.Missing(), model.Missing()})
		assert.Equal(t, Summary{}, s)
		assert.True(t, s.Empty())
	})
}

func TestCompute_NegativeValues(t *testing.T) {
	s := ComputeFloats([]float64{-5, -1})
	assert.Equal(t, -5.0, s.Min)
	assert.Equal(t, -1.0, s.Max)
	assert.Equal(t, -3.0, s.Average)
}
