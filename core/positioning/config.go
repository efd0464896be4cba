package positioning

import "fmt"

// Weighting selects how WKNN neighbours are weighted by signal distance.
type Weighting string

const (
	WeightInverse  Weighting = "inverse"
	WeightSquare   Weighting = "square"
	WeightGaussian Weighting = "gaussian"
)

// Config tunes the positioning engine. Zero fields are filled by
// SetDefaults.
type Config struct {
	K               int       `json:"k"`
	Weighting       Weighting `json:"weighting"`
	GaussianSigma   float64   `json:"gaussian_sigma"`
	MinSamples      int       `json:"min_samples"`
	HybridThreshold float64   `json:"hybrid_threshold"`
	MinDetectable   float64   `json:"min_detectable_dbm"`
	StrongSignal    float64   `json:"strong_signal_dbm"`
	Undetected      float64   `json:"undetected_dbm"`
	Survey          string    `json:"survey"`
	PathLoss        PathLoss  `json:"path_loss"`
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.K <= 0 {
		c.K = 4
	}
	if c.Weighting == "" {
		c.Weighting = WeightInverse
	}
	if c.GaussianSigma <= 0 {
		c.GaussianSigma = 10
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	if c.HybridThreshold <= 0 {
		c.HybridThreshold = 0.7
	}
	if c.MinDetectable == 0 {
		c.MinDetectable = -95
	}
	if c.StrongSignal == 0 {
		c.StrongSignal = -60
	}
	if c.Undetected == 0 {
		c.Undetected = -100
	}
	c.PathLoss.SetDefaults()
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	switch c.Weighting {
	case WeightInverse, WeightSquare, WeightGaussian:
	default:
		return fmt.Errorf("positioning: unknown weighting %q", c.Weighting)
	}
	if c.HybridThreshold > 1 {
		return fmt.Errorf("positioning: hybrid_threshold must be <= 1")
	}
	if c.Undetected > c.MinDetectable {
		return fmt.Errorf("positioning: undetected_dbm must not exceed min_detectable_dbm")
	}
	return c.PathLoss.Validate()
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}
