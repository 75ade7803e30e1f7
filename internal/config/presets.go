package config

import "sort"

func decayModel(initial uint) ModelConfig {
	return ModelConfig{
		Name:    "decay",
		Species: []SpeciesConfig{{Name: "A", Initial: initial}, {Name: "B"}},
		Reactions: []ReactionConfig{
			{Name: "convert", Rate: 0.1, Change: map[string]int{"A": -1, "B": 1}},
		},
	}
}

func birthDeathModel(initial uint, mode string) ModelConfig {
	return ModelConfig{
		Name:    "birth-death",
		Species: []SpeciesConfig{{Name: "X", Initial: initial, Mode: mode}},
		Reactions: []ReactionConfig{
			{Name: "birth", Rate: 10, Change: map[string]int{"X": 1}},
			{Name: "death", Rate: 0.1, Change: map[string]int{"X": -1}},
		},
	}
}

func dimerizationModel(mode string) ModelConfig {
	return ModelConfig{
		Name: "dimerization",
		Species: []SpeciesConfig{
			{Name: "M", Initial: 1000, Mode: mode},
			{Name: "D", Mode: mode},
		},
		Reactions: []ReactionConfig{
			{Name: "dimerize", Rate: 0.002, Change: map[string]int{"M": -2, "D": 1}},
			{Name: "dissociate", Rate: 0.1, Change: map[string]int{"M": 2, "D": -1}},
		},
	}
}

func michaelisMentenModel() ModelConfig {
	return ModelConfig{
		Name: "michaelis-menten",
		Species: []SpeciesConfig{
			{Name: "S", Initial: 300},
			{Name: "E", Initial: 50, Mode: "discrete"},
			{Name: "C", Mode: "discrete"},
			{Name: "P"},
		},
		Reactions: []ReactionConfig{
			{Name: "bind", Rate: 0.002, Change: map[string]int{"S": -1, "E": -1, "C": 1}},
			{Name: "unbind", Rate: 0.1, Change: map[string]int{"S": 1, "E": 1, "C": -1}},
			{Name: "catalyse", Rate: 0.1, Change: map[string]int{"C": -1, "E": 1, "P": 1}},
		},
	}
}

func lotkaVolterraModel(prey, predators uint) ModelConfig {
	return ModelConfig{
		Name: "lotka-volterra",
		Species: []SpeciesConfig{
			{Name: "prey", Initial: prey, SwitchMin: 50},
			{Name: "predator", Initial: predators, SwitchMin: 50},
		},
		Reactions: []ReactionConfig{
			{
				Name:      "breed",
				Rate:      1,
				Change:    map[string]int{"prey": 1},
				Reactants: map[string]int{"prey": 1},
			},
			{
				Name:      "hunt",
				Rate:      0.005,
				Change:    map[string]int{"prey": -1, "predator": 1},
				Reactants: map[string]int{"prey": 1, "predator": 1},
			},
			{Name: "starve", Rate: 0.6, Change: map[string]int{"predator": -1}},
		},
	}
}

func preset(mc ModelConfig, endTime, increment float64, trajectories int) *Config {
	cfg := DefaultConfig()
	cfg.Model = mc
	cfg.EndTime = endTime
	cfg.Increment = increment
	cfg.Trajectories = trajectories
	return cfg
}

// Presets maps network name to variant name to a complete run file.
var Presets = map[string]map[string]*Config{
	"decay": {
		"small": preset(decayModel(100), 20, 0.5, 10),
		"large": preset(decayModel(100000), 20, 0.5, 4),
	},
	"birth-death": {
		"hybrid":   preset(birthDeathModel(0, ""), 50, 0.5, 20),
		"discrete": preset(birthDeathModel(0, "discrete"), 50, 0.5, 20),
	},
	"dimerization": {
		"hybrid":     preset(dimerizationModel(""), 20, 0.2, 10),
		"continuous": preset(dimerizationModel("continuous"), 20, 0.2, 1),
	},
	"michaelis-menten": {
		"default": preset(michaelisMentenModel(), 50, 0.5, 10),
	},
	"lotka-volterra": {
		"cycle": preset(lotkaVolterraModel(100, 100), 30, 0.1, 4),
		"crash": preset(lotkaVolterraModel(20, 300), 30, 0.1, 20),
	},
}

// GetPreset returns a copy of the named run file, or nil.
func GetPreset(network, variant string) *Config {
	variants, ok := Presets[network]
	if !ok {
		return nil
	}
	cfg, ok := variants[variant]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(network string) []string {
	variants, ok := Presets[network]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListNetworks() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
