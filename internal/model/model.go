// Package model holds the reaction network: species, reactions and their
// stoichiometry. A Model, including its reaction dependency graph, is
// complete once New returns and is only read afterwards.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Mode is how a species is represented by the hybrid solver.
type Mode int

const (
	Continuous Mode = iota
	Discrete
	Dynamic
)

func (m Mode) String() string {
	switch m {
	case Continuous:
		return "continuous"
	case Discrete:
		return "discrete"
	case Dynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names produced by Mode.String, case-insensitively.
// An empty string means Dynamic.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous":
		return Continuous, nil
	case "discrete":
		return Discrete, nil
	case "dynamic", "":
		return Dynamic, nil
	default:
		return 0, fmt.Errorf("unknown species mode %q", s)
	}
}

// DefaultSwitchTol is the coefficient-of-variation threshold below which a
// dynamic species is treated continuously.
const DefaultSwitchTol = 0.03

var (
	ErrEmptyName      = errors.New("model: empty name")
	ErrDuplicateName  = errors.New("model: duplicate name")
	ErrUnknownSpecies = errors.New("model: unknown species")
	ErrUnknownRxn     = errors.New("model: unknown reaction")
	ErrBadDelta       = errors.New("model: stoichiometric delta length does not match species count")
)

type Species struct {
	ID                int
	Name              string
	InitialPopulation uint
	UserMode          Mode
	// SwitchTol is compared against the estimated sd/mean of a dynamic
	// species over the coming step.
	SwitchTol float64
	// SwitchMin, when non-zero, replaces SwitchTol: a dynamic species is
	// continuous while its population is at least SwitchMin.
	SwitchMin uint
}

type Reaction struct {
	ID   int
	Name string
	// Rate is the mass-action rate constant.
	Rate float64
	// Delta is the population change per firing, indexed by species id.
	Delta []int
	// Reactants maps species id to molecularity.
	Reactants map[int]int
	// Affected lists reactions whose propensity depends on a species this
	// reaction changes, in ascending order.
	Affected []int
}

type Model struct {
	Species   []Species
	Reactions []Reaction

	speciesIdx  map[string]int
	reactionIdx map[string]int
}

// Option configures a Model during New. Options run after ids are assigned.
type Option func(*Model) error

// New builds a model with dense ids assigned in input order. Reactions start
// with an all-zero delta; options fill in stoichiometry, rates and modes.
func New(speciesNames []string, populations []uint, reactionNames []string, opts ...Option) (*Model, error) {
	if len(speciesNames) != len(populations) {
		return nil, fmt.Errorf("model: %d species names but %d populations", len(speciesNames), len(populations))
	}

	m := &Model{
		Species:     make([]Species, len(speciesNames)),
		Reactions:   make([]Reaction, len(reactionNames)),
		speciesIdx:  make(map[string]int, len(speciesNames)),
		reactionIdx: make(map[string]int, len(reactionNames)),
	}

	for i, name := range speciesNames {
		if name == "" {
			return nil, fmt.Errorf("species %d: %w", i, ErrEmptyName)
		}
		if _, dup := m.speciesIdx[name]; dup {
			return nil, fmt.Errorf("species %q: %w", name, ErrDuplicateName)
		}
		m.speciesIdx[name] = i
		m.Species[i] = Species{
			ID:                i,
			Name:              name,
			InitialPopulation: populations[i],
			UserMode:          Dynamic,
			SwitchTol:         DefaultSwitchTol,
		}
	}

	for i, name := range reactionNames {
		if name == "" {
			return nil, fmt.Errorf("reaction %d: %w", i, ErrEmptyName)
		}
		if _, dup := m.reactionIdx[name]; dup {
			return nil, fmt.Errorf("reaction %q: %w", name, ErrDuplicateName)
		}
		m.reactionIdx[name] = i
		m.Reactions[i] = Reaction{
			ID:    i,
			Name:  name,
			Rate:  1,
			Delta: make([]int, len(speciesNames)),
		}
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	for i := range m.Reactions {
		r := &m.Reactions[i]
		if r.Reactants == nil {
			r.Reactants = make(map[int]int)
			for s, d := range r.Delta {
				if d < 0 {
					r.Reactants[s] = -d
				}
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.UpdateAffectedReactions()
	return m, nil
}

// WithChange sets the population change of species caused by one firing of
// reaction.
func WithChange(reaction, species string, delta int) Option {
	return func(m *Model) error {
		r, s, err := m.lookup(reaction, species)
		if err != nil {
			return err
		}
		m.Reactions[r].Delta[s] = delta
		return nil
	}
}

// WithReactant declares species as a reactant of reaction with the given
// molecularity. Declaring any reactant replaces the default derived from
// negative deltas, so catalysts must be listed together with consumed
// species.
func WithReactant(reaction, species string, count int) Option {
	return func(m *Model) error {
		r, s, err := m.lookup(reaction, species)
		if err != nil {
			return err
		}
		if count < 0 {
			return fmt.Errorf("reaction %q: negative molecularity for %q", reaction, species)
		}
		if m.Reactions[r].Reactants == nil {
			m.Reactions[r].Reactants = make(map[int]int)
		}
		m.Reactions[r].Reactants[s] = count
		return nil
	}
}

func WithRate(reaction string, k float64) Option {
	return func(m *Model) error {
		r, ok := m.reactionIdx[reaction]
		if !ok {
			return fmt.Errorf("%q: %w", reaction, ErrUnknownRxn)
		}
		if k < 0 {
			return fmt.Errorf("reaction %q: negative rate %g", reaction, k)
		}
		m.Reactions[r].Rate = k
		return nil
	}
}

func WithMode(species string, mode Mode) Option {
	return func(m *Model) error {
		s, ok := m.speciesIdx[species]
		if !ok {
			return fmt.Errorf("%q: %w", species, ErrUnknownSpecies)
		}
		m.Species[s].UserMode = mode
		return nil
	}
}

// WithSwitching sets the dynamic switching thresholds of species.
func WithSwitching(species string, tol float64, minPop uint) Option {
	return func(m *Model) error {
		s, ok := m.speciesIdx[species]
		if !ok {
			return fmt.Errorf("%q: %w", species, ErrUnknownSpecies)
		}
		if tol > 0 {
			m.Species[s].SwitchTol = tol
		}
		m.Species[s].SwitchMin = minPop
		return nil
	}
}

// WithAllModes sets the user mode of every species.
func WithAllModes(mode Mode) Option {
	return func(m *Model) error {
		for i := range m.Species {
			m.Species[i].UserMode = mode
		}
		return nil
	}
}

func (m *Model) lookup(reaction, species string) (int, int, error) {
	r, ok := m.reactionIdx[reaction]
	if !ok {
		return 0, 0, fmt.Errorf("%q: %w", reaction, ErrUnknownRxn)
	}
	s, ok := m.speciesIdx[species]
	if !ok {
		return 0, 0, fmt.Errorf("%q: %w", species, ErrUnknownSpecies)
	}
	return r, s, nil
}

// Validate checks the structural invariants of the model.
func (m *Model) Validate() error {
	n := len(m.Species)
	for i, s := range m.Species {
		if s.ID != i {
			return fmt.Errorf("species %q: id %d at position %d", s.Name, s.ID, i)
		}
	}
	for i, r := range m.Reactions {
		if r.ID != i {
			return fmt.Errorf("reaction %q: id %d at position %d", r.Name, r.ID, i)
		}
		if len(r.Delta) != n {
			return fmt.Errorf("reaction %q: %w (%d != %d)", r.Name, ErrBadDelta, len(r.Delta), n)
		}
		for s, c := range r.Reactants {
			if s < 0 || s >= n {
				return fmt.Errorf("reaction %q: reactant %d: %w", r.Name, s, ErrUnknownSpecies)
			}
			if c < 0 {
				return fmt.Errorf("reaction %q: negative molecularity", r.Name)
			}
		}
	}
	return nil
}

func (m *Model) NumSpecies() int   { return len(m.Species) }
func (m *Model) NumReactions() int { return len(m.Reactions) }

func (m *Model) SpeciesIndex(name string) (int, bool) {
	i, ok := m.speciesIdx[name]
	return i, ok
}

func (m *Model) ReactionIndex(name string) (int, bool) {
	i, ok := m.reactionIdx[name]
	return i, ok
}

func (m *Model) SpeciesNames() []string {
	names := make([]string, len(m.Species))
	for i, s := range m.Species {
		names[i] = s.Name
	}
	return names
}

func (m *Model) InitialPopulations() []float64 {
	pops := make([]float64, len(m.Species))
	for i, s := range m.Species {
		pops[i] = float64(s.InitialPopulation)
	}
	return pops
}

// UpdateAffectedReactions fills Reaction.Affected: reaction j is affected by
// reaction i when i changes a species that j reads as a reactant. A reaction
// that changes its own reactants lists itself. New calls it once; call it
// again only after editing reactions by hand.
func (m *Model) UpdateAffectedReactions() {
	for i := range m.Reactions {
		ri := &m.Reactions[i]
		affected := make([]int, 0)
		for j := range m.Reactions {
			for s := range m.Reactions[j].Reactants {
				if ri.Delta[s] != 0 {
					affected = append(affected, j)
					break
				}
			}
		}
		sort.Ints(affected)
		ri.Affected = affected
	}
}
