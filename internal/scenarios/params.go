package scenarios

// Params are the numeric knobs shared by the built-in scenarios. Each
// scenario reads the fields it needs and ignores the rest.
type Params struct {
	Mass        float64 `yaml:"mass"`
	Height      float64 `yaml:"height"`
	Velocity    float64 `yaml:"velocity"`
	Angle       float64 `yaml:"angle"`
	Length      float64 `yaml:"length"`
	Stretch     float64 `yaml:"stretch"`
	Stiffness   float64 `yaml:"stiffness"`
	Damping     float64 `yaml:"damping"`
	Mu          float64 `yaml:"mu"`
	Restitution float64 `yaml:"restitution"`
	Ratio       float64 `yaml:"ratio"`
	Torque      float64 `yaml:"torque"`
}

const (
	DefaultMass        = 1.0
	DefaultHeight      = 1.0
	DefaultLength      = 0.5
	DefaultStiffness   = 100.0
	DefaultDamping     = 0.5
	DefaultMu          = 0.3
	DefaultRestitution = 0.5
)

// Map lists the parameters by their YAML names.
func (p Params) Map() map[string]float64 {
	return map[string]float64{
		"mass":        p.Mass,
		"height":      p.Height,
		"velocity":    p.Velocity,
		"angle":       p.Angle,
		"length":      p.Length,
		"stretch":     p.Stretch,
		"stiffness":   p.Stiffness,
		"damping":     p.Damping,
		"mu":          p.Mu,
		"restitution": p.Restitution,
		"ratio":       p.Ratio,
		"torque":      p.Torque,
	}
}
