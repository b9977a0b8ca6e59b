package dataset

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the construction-time options of a Dataset. Each construction
// gets its own value; nothing here is shared between instances.
type Config struct {
	// QuantitativeFeatures selects the continuous-signal feature store
	// flavor instead of presence/absence.
	QuantitativeFeatures bool `mapstructure:"quantitative_features"`
	// CellWise makes samples cell-type specific: the index space is
	// n_cell_types times the position space and each sample carries a
	// cell-type one-hot vector.
	CellWise bool `mapstructure:"cell_wise"`
	// MultiCTTarget fetches targets for all cell types at once. Requires
	// CellWise.
	MultiCTTarget bool `mapstructure:"multi_ct_target"`
	// SamplesMode switches coordinate resolution to precomputed sample
	// records instead of interval arithmetic.
	SamplesMode bool `mapstructure:"samples_mode"`
	// SequenceLength is the total encoded window length handed to the model.
	SequenceLength int `mapstructure:"sequence_length"`
	// CenterBin is the window length over which feature labels are detected.
	CenterBin int `mapstructure:"center_bin_to_predict"`
	// PositionSkip spaces sampled center points to reduce window overlap.
	PositionSkip int `mapstructure:"position_skip"`
	// Strand to sample from, "+" or "-".
	Strand string `mapstructure:"strand"`
	// FeatureThreshold is the covered-window fraction above which a
	// qualitative feature counts as present. Ignored (with a warning) for
	// quantitative features.
	FeatureThreshold float64 `mapstructure:"feature_thresholds"`
}

// DefaultConfig returns a fresh config with the standard training defaults.
func DefaultConfig() Config {
	return Config{
		CellWise:         true,
		SequenceLength:   1000,
		CenterBin:        200,
		PositionSkip:     1,
		Strand:           "+",
		FeatureThreshold: 0.5,
	}
}

// LoadConfig reads a YAML config file into a fresh DefaultConfig.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read dataset config: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal dataset config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports malformed option combinations. Called at construction;
// failures are fatal, not retried.
func (c Config) Validate() error {
	if c.MultiCTTarget && !c.CellWise {
		return fmt.Errorf("multi_ct_target requires cell_wise")
	}
	if c.SequenceLength <= 0 {
		return fmt.Errorf("sequence_length must be positive, got %d", c.SequenceLength)
	}
	if c.CenterBin <= 0 {
		return fmt.Errorf("center_bin_to_predict must be positive, got %d", c.CenterBin)
	}
	if c.CenterBin > c.SequenceLength {
		return fmt.Errorf("center_bin_to_predict %d exceeds sequence_length %d", c.CenterBin, c.SequenceLength)
	}
	if c.PositionSkip < 1 {
		return fmt.Errorf("position_skip must be at least 1, got %d", c.PositionSkip)
	}
	if c.Strand != "+" && c.Strand != "-" {
		return fmt.Errorf("strand must be + or -, got %q", c.Strand)
	}
	if c.FeatureThreshold < 0 || c.FeatureThreshold > 1 {
		return fmt.Errorf("feature_thresholds %v outside [0, 1]", c.FeatureThreshold)
	}
	return nil
}
