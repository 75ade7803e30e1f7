package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/model"
)

const (
	DefaultEndTime      = 10.0
	DefaultIncrement    = 0.1
	DefaultTrajectories = 1
	DefaultIntegrator   = "rk45"
	DefaultMaxRetries   = 32
)

type Config struct {
	Model               ModelConfig `yaml:"model"`
	Integrator          string      `yaml:"integrator"`
	EndTime             float64     `yaml:"end_time"`
	Increment           float64     `yaml:"increment"`
	Trajectories        int         `yaml:"trajectories"`
	Seed                int64       `yaml:"seed"`
	AbsTol              float64     `yaml:"abs_tol"`
	RelTol              float64     `yaml:"rel_tol"`
	MaxRetries          int         `yaml:"max_retries"`
	Workers             int         `yaml:"workers"`
	StoichiometricRates bool        `yaml:"stoichiometric_rates,omitempty"`
}

type ModelConfig struct {
	Name      string           `yaml:"name"`
	Species   []SpeciesConfig  `yaml:"species"`
	Reactions []ReactionConfig `yaml:"reactions"`
}

type SpeciesConfig struct {
	Name    string `yaml:"name"`
	Initial uint   `yaml:"initial"`
	// Mode is continuous, discrete or dynamic (the default).
	Mode      string  `yaml:"mode,omitempty"`
	SwitchTol float64 `yaml:"switch_tol,omitempty"`
	SwitchMin uint    `yaml:"switch_min,omitempty"`
}

type ReactionConfig struct {
	Name string  `yaml:"name"`
	Rate float64 `yaml:"rate"`
	// Change maps species name to population change per firing.
	Change map[string]int `yaml:"change"`
	// Reactants maps species name to molecularity. When empty the consumed
	// species of Change are used.
	Reactants map[string]int `yaml:"reactants,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:        decayModel(100),
		Integrator:   DefaultIntegrator,
		EndTime:      DefaultEndTime,
		Increment:    DefaultIncrement,
		Trajectories: DefaultTrajectories,
		AbsTol:       dynamo.DefaultAbsTol,
		RelTol:       dynamo.DefaultRelTol,
		MaxRetries:   DefaultMaxRetries,
		Workers:      1,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Model = ModelConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Increment <= 0 {
		return fmt.Errorf("increment must be positive, got %g", c.Increment)
	}
	if c.EndTime < 0 {
		return fmt.Errorf("end_time must be non-negative, got %g", c.EndTime)
	}
	if c.Trajectories < 1 {
		return fmt.Errorf("trajectories must be at least 1, got %d", c.Trajectories)
	}
	if !c.Tolerances().Valid() {
		return fmt.Errorf("tolerances must be positive, got abs=%g rel=%g", c.AbsTol, c.RelTol)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if len(c.Model.Species) == 0 {
		return fmt.Errorf("model %q has no species", c.Model.Name)
	}
	return nil
}

func (c *Config) Tolerances() dynamo.Tolerances {
	return dynamo.Tolerances{Abs: c.AbsTol, Rel: c.RelTol}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Model = c.Model.clone()
	return &out
}

func (mc ModelConfig) clone() ModelConfig {
	out := ModelConfig{
		Name:      mc.Name,
		Species:   append([]SpeciesConfig(nil), mc.Species...),
		Reactions: make([]ReactionConfig, len(mc.Reactions)),
	}
	for i, r := range mc.Reactions {
		out.Reactions[i] = ReactionConfig{
			Name:      r.Name,
			Rate:      r.Rate,
			Change:    copyCounts(r.Change),
			Reactants: copyCounts(r.Reactants),
		}
	}
	return out
}

func copyCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// BuildModel turns the model section into a validated reaction network.
func (mc ModelConfig) BuildModel() (*model.Model, error) {
	names := make([]string, len(mc.Species))
	pops := make([]uint, len(mc.Species))
	var opts []model.Option

	for i, sp := range mc.Species {
		names[i] = sp.Name
		pops[i] = sp.Initial
		mode, err := model.ParseMode(sp.Mode)
		if err != nil {
			return nil, fmt.Errorf("species %q: %w", sp.Name, err)
		}
		opts = append(opts,
			model.WithMode(sp.Name, mode),
			model.WithSwitching(sp.Name, sp.SwitchTol, sp.SwitchMin),
		)
	}

	rxnNames := make([]string, len(mc.Reactions))
	for i, r := range mc.Reactions {
		rxnNames[i] = r.Name
		opts = append(opts, model.WithRate(r.Name, r.Rate))
		// Species order keeps option application deterministic.
		for _, sp := range mc.Species {
			if d, ok := r.Change[sp.Name]; ok {
				opts = append(opts, model.WithChange(r.Name, sp.Name, d))
			}
			if n, ok := r.Reactants[sp.Name]; ok {
				opts = append(opts, model.WithReactant(r.Name, sp.Name, n))
			}
		}
		for name := range r.Change {
			if !mc.hasSpecies(name) {
				return nil, fmt.Errorf("reaction %q: %q: %w", r.Name, name, model.ErrUnknownSpecies)
			}
		}
		for name := range r.Reactants {
			if !mc.hasSpecies(name) {
				return nil, fmt.Errorf("reaction %q: %q: %w", r.Name, name, model.ErrUnknownSpecies)
			}
		}
	}

	return model.New(names, pops, rxnNames, opts...)
}

func (mc ModelConfig) hasSpecies(name string) bool {
	for _, sp := range mc.Species {
		if sp.Name == name {
			return true
		}
	}
	return false
}
