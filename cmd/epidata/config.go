package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/epidata/internal/dataset"
)

// configKeys are the keys the CLI reads, each with a parser for its value
// type. Everything else is rejected so typos never end up in the file.
var configKeys = map[string]func(string) (any, error){
	"dataset.quantitative_features": parseBoolValue,
	"dataset.cell_wise":             parseBoolValue,
	"dataset.multi_ct_target":       parseBoolValue,
	"dataset.samples_mode":          parseBoolValue,
	"dataset.sequence_length":       parseIntValue,
	"dataset.center_bin_to_predict": parseIntValue,
	"dataset.position_skip":         parseIntValue,
	"dataset.strand":                parseStringValue,
	"dataset.feature_thresholds":    parseFloatValue,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage epidata configuration",
		Long: `Show, get, or set the dataset defaults used when no --dataset-config
file is given. Config is stored in ~/.epidata.yaml.`,
		Example: `  epidata config                                  # show effective dataset config
  epidata config set dataset.sequence_length 2000
  epidata config get dataset.strand`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get an effective configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

// datasetConfigFromViper overlays the config file's dataset section onto the
// standard defaults and validates the result.
func datasetConfigFromViper() (dataset.Config, error) {
	cfg := dataset.DefaultConfig()
	if viper.IsSet("dataset") {
		if err := viper.UnmarshalKey("dataset", &cfg); err != nil {
			return dataset.Config{}, fmt.Errorf("unmarshal dataset config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return dataset.Config{}, err
	}
	return cfg, nil
}

// datasetSettings renders a config as the key/value map config show prints,
// matching the mapstructure tags on dataset.Config.
func datasetSettings(cfg dataset.Config) map[string]any {
	return map[string]any{
		"quantitative_features": cfg.QuantitativeFeatures,
		"cell_wise":             cfg.CellWise,
		"multi_ct_target":       cfg.MultiCTTarget,
		"samples_mode":          cfg.SamplesMode,
		"sequence_length":       cfg.SequenceLength,
		"center_bin_to_predict": cfg.CenterBin,
		"position_skip":         cfg.PositionSkip,
		"strand":                cfg.Strand,
		"feature_thresholds":    cfg.FeatureThreshold,
	}
}

func runConfigShow() error {
	cfg, err := datasetConfigFromViper()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(map[string]any{"dataset": datasetSettings(cfg)})
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if viper.ConfigFileUsed() == "" {
		fmt.Println("# Defaults; no config file found at ~/.epidata.yaml")
	}
	fmt.Print(string(out))
	return nil
}

// parseConfigValue validates a key and parses its value to the right type.
func parseConfigValue(key, value string) (any, error) {
	parser, ok := configKeys[key]
	if !ok {
		known := make([]string, 0, len(configKeys))
		for k := range configKeys {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown key %q; known keys:\n  %s", key, strings.Join(known, "\n  "))
	}
	parsed, err := parser(value)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", key, err)
	}
	return parsed, nil
}

func runConfigSet(key, value string) error {
	parsed, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}
	viper.Set(key, parsed)

	// Reject combinations the dataset would refuse before persisting them.
	if _, err := datasetConfigFromViper(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".epidata.yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %v in %s\n", key, parsed, cfgFile)
	return nil
}

func runConfigGet(key string) error {
	if _, ok := configKeys[key]; !ok {
		_, err := parseConfigValue(key, "")
		return err
	}
	cfg, err := datasetConfigFromViper()
	if err != nil {
		return err
	}
	fmt.Println(datasetSettings(cfg)[strings.TrimPrefix(key, "dataset.")])
	return nil
}

func parseBoolValue(v string) (any, error) {
	switch v {
	case "true", "yes", "on":
		return true, nil
	case "false", "no", "off":
		return false, nil
	}
	return nil, fmt.Errorf("want a boolean (true/false), got %q", v)
}

func parseIntValue(v string) (any, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("want an integer, got %q", v)
	}
	return n, nil
}

func parseFloatValue(v string) (any, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("want a number, got %q", v)
	}
	return f, nil
}

func parseStringValue(v string) (any, error) {
	return v, nil
}
