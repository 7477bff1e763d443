package config

import "sort"

// Presets holds named variations of each scenario's defaults.
var Presets = map[string]map[string]func(*Config){
	"bouncing_ball": {
		"elastic": func(c *Config) { c.Params.Restitution = 1; c.Duration = 3 },
		"plastic": func(c *Config) { c.Params.Restitution = 0; c.Duration = 1.5 },
		"rough": func(c *Config) {
			c.Params.Mu = 0.3
			c.Params.Velocity = 1
			c.Params.Restitution = 0.7
			c.Duration = 3
		},
	},
	"pendulum": {
		"small": func(c *Config) { c.Params.Angle = 0.2; c.Duration = 5 },
		"large": func(c *Config) { c.Params.Angle = 2.5; c.Duration = 5 },
		"elastic": func(c *Config) {
			c.Params.Stiffness = 1e4
			c.Params.Damping = 10
			c.Dt = 1e-4
		},
	},
	"sliding_block": {
		"slips": func(c *Config) { c.Params.Mu = 0.2; c.Duration = 2 },
		"steep": func(c *Config) { c.Params.Angle = 0.6; c.Params.Mu = 0.8 },
	},
	"tripod": {
		"gaussseidel": func(c *Config) { c.Solver.Strategy = "gaussseidel" },
		"rootfinding": func(c *Config) { c.Solver.Strategy = "rootfinding" },
		"drop":        func(c *Config) { c.Params.Height = 0.5; c.Duration = 3 },
	},
	"spring_pair": {
		"stiff":    func(c *Config) { c.Params.Stiffness = 1e4; c.Dt = 1e-4 },
		"undamped": func(c *Config) { c.Params.Damping = 0; c.Duration = 10 },
		"adaptive": func(c *Config) { c.Integrator = "rk45"; c.Adaptive = true },
	},
	"soft_ball": {
		"stiff": func(c *Config) { c.Params.Stiffness = 1e6; c.Dt = 1e-4 },
	},
	"gear": {
		"free":     func(c *Config) { c.Params.Stiffness = 0 },
		"reversed": func(c *Config) { c.Params.Ratio = 2 },
	},
}

// GetPreset returns the scenario defaults with the preset applied, or nil.
func GetPreset(scenario, preset string) *Config {
	apply, ok := Presets[scenario][preset]
	if !ok {
		return nil
	}
	cfg, err := ForScenario(scenario)
	if err != nil {
		return nil
	}
	apply(cfg)
	return cfg
}

func ListPresets(scenario string) []string {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scenarioPresets))
	for name := range scenarioPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
