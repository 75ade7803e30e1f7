package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dimerization(t *testing.T) *Model {
	t.Helper()
	m, err := New(
		[]string{"monomer", "dimer"},
		[]uint{30, 0},
		[]string{"forward", "reverse"},
		WithChange("forward", "monomer", -2),
		WithChange("forward", "dimer", 1),
		WithChange("reverse", "monomer", 2),
		WithChange("reverse", "dimer", -1),
		WithRate("forward", 0.005),
		WithRate("reverse", 0.08),
	)
	require.NoError(t, err)
	return m
}

func TestNew_AssignsDenseIDs(t *testing.T) {
	m := dimerization(t)

	require.Equal(t, 2, m.NumSpecies())
	require.Equal(t, 2, m.NumReactions())
	for i, s := range m.Species {
		assert.Equal(t, i, s.ID)
		assert.Equal(t, Dynamic, s.UserMode)
		assert.Equal(t, DefaultSwitchTol, s.SwitchTol)
	}
	for i, r := range m.Reactions {
		assert.Equal(t, i, r.ID)
		assert.Len(t, r.Delta, m.NumSpecies())
	}

	idx, ok := m.SpeciesIndex("dimer")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"monomer", "dimer"}, m.SpeciesNames())
	assert.Equal(t, []float64{30, 0}, m.InitialPopulations())
}

func TestNew_DefaultReactantsFromNegativeDelta(t *testing.T) {
	m := dimerization(t)

	assert.Equal(t, map[int]int{0: 2}, m.Reactions[0].Reactants)
	assert.Equal(t, map[int]int{1: 1}, m.Reactions[1].Reactants)
	assert.Equal(t, 0.005, m.Reactions[0].Rate)
}

func TestNew_ExplicitCatalyst(t *testing.T) {
	m, err := New(
		[]string{"S", "E", "P"},
		[]uint{100, 5, 0},
		[]string{"convert"},
		WithChange("convert", "S", -1),
		WithChange("convert", "P", 1),
		WithReactant("convert", "S", 1),
		WithReactant("convert", "E", 1),
	)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 1, 1: 1}, m.Reactions[0].Reactants)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name      string
		species   []string
		pops      []uint
		reactions []string
		opts      []Option
		target    error
	}{
		{"empty species name", []string{""}, []uint{1}, nil, nil, ErrEmptyName},
		{"duplicate species", []string{"A", "A"}, []uint{1, 2}, nil, nil, ErrDuplicateName},
		{"duplicate reaction", []string{"A"}, []uint{1}, []string{"r", "r"}, nil, ErrDuplicateName},
		{"unknown species", []string{"A"}, []uint{1}, []string{"r"}, []Option{WithChange("r", "B", 1)}, ErrUnknownSpecies},
		{"unknown reaction", []string{"A"}, []uint{1}, []string{"r"}, []Option{WithRate("q", 1)}, ErrUnknownRxn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.species, tt.pops, tt.reactions, tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	_, err := New([]string{"A"}, []uint{1, 2}, nil)
	assert.Error(t, err, "mismatched populations must fail")
}

func TestValidate_DeltaLength(t *testing.T) {
	m := dimerization(t)
	m.Reactions[1].Delta = []int{1}

	err := m.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadDelta)
}

func TestUpdateAffectedReactions(t *testing.T) {
	m, err := New(
		[]string{"A", "B", "C"},
		[]uint{10, 0, 0},
		[]string{"a_to_b", "b_to_c", "make_a"},
		WithChange("a_to_b", "A", -1),
		WithChange("a_to_b", "B", 1),
		WithChange("b_to_c", "B", -1),
		WithChange("b_to_c", "C", 1),
		WithChange("make_a", "A", 1),
	)
	require.NoError(t, err)

	// New builds the graph.
	assert.Equal(t, []int{0, 1}, m.Reactions[0].Affected)
	assert.Equal(t, []int{1}, m.Reactions[1].Affected)
	assert.Equal(t, []int{0}, m.Reactions[2].Affected)

	m.Reactions[2].Delta = []int{0, 1, 0}
	m.UpdateAffectedReactions()
	assert.Equal(t, []int{1}, m.Reactions[2].Affected)
}

func TestModes(t *testing.T) {
	for _, mode := range []Mode{Continuous, Discrete, Dynamic} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	parsed, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Dynamic, parsed)

	_, err = ParseMode("quantum")
	assert.Error(t, err)

	m, err := New([]string{"A", "B"}, []uint{1, 1}, nil,
		WithAllModes(Discrete),
		WithMode("B", Continuous),
		WithSwitching("A", 0.1, 50),
	)
	require.NoError(t, err)
	assert.Equal(t, Discrete, m.Species[0].UserMode)
	assert.Equal(t, Continuous, m.Species[1].UserMode)
	assert.Equal(t, 0.1, m.Species[0].SwitchTol)
	assert.Equal(t, uint(50), m.Species[0].SwitchMin)
}
