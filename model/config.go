package model

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configValidate = validator.New()

// Config is the complete configuration of a walker
type Config struct {
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
	Graph  GraphConfig  `mapstructure:"graph" yaml:"graph" json:"graph"`
}

// PolicyConfig represents the hyperparameters of the graph search policy
type PolicyConfig struct {
	// Embedding and history sizes
	EntityDim        int    `mapstructure:"entity_dim" yaml:"entity_dim" json:"entity_dim" validate:"gt=0"`
	RelationDim      int    `mapstructure:"relation_dim" yaml:"relation_dim" json:"relation_dim" validate:"gt=0,eqfield=EntityDim"`
	HistoryDim       int    `mapstructure:"history_dim" yaml:"history_dim" json:"history_dim" validate:"gt=0"`
	HistoryNumLayers int    `mapstructure:"history_num_layers" yaml:"history_num_layers" json:"history_num_layers" validate:"gt=0"`
	HistoryCell      string `mapstructure:"history_cell" yaml:"history_cell" json:"history_cell" validate:"oneof=lstm gru"`

	// Graph transformer
	NumHeads             int `mapstructure:"num_heads" yaml:"num_heads" json:"num_heads" validate:"gt=0"`
	NumTransformerLayers int `mapstructure:"num_transformer_layers" yaml:"num_transformer_layers" json:"num_transformer_layers" validate:"gt=0"`
	TransformerHiddenDim int `mapstructure:"transformer_hidden_dim" yaml:"transformer_hidden_dim" json:"transformer_hidden_dim" validate:"gt=0"`
	Bandwidth            int `mapstructure:"bandwidth" yaml:"bandwidth" json:"bandwidth" validate:"gt=0"` // max neighbors per node

	// Dropout rates
	EmbDropoutRate    float64 `mapstructure:"emb_dropout_rate" yaml:"emb_dropout_rate" json:"emb_dropout_rate" validate:"gte=0,lt=1"`
	FFDropoutRate     float64 `mapstructure:"ff_dropout_rate" yaml:"ff_dropout_rate" json:"ff_dropout_rate" validate:"gte=0,lt=1"`
	ActionDropoutRate float64 `mapstructure:"action_dropout_rate" yaml:"action_dropout_rate" json:"action_dropout_rate" validate:"gte=0,lt=1"` // neighbor dropout

	// Rollouts
	NumRollouts int `mapstructure:"num_rollouts" yaml:"num_rollouts" json:"num_rollouts" validate:"gt=0"`

	// Feature composition
	RelationOnly       bool `mapstructure:"relation_only" yaml:"relation_only" json:"relation_only"`
	RelationOnlyInPath bool `mapstructure:"relation_only_in_path" yaml:"relation_only_in_path" json:"relation_only_in_path"`

	XavierInitialization   bool `mapstructure:"xavier_initialization" yaml:"xavier_initialization" json:"xavier_initialization"`
	MaskTestFalseNegatives bool `mapstructure:"mask_test_false_negatives" yaml:"mask_test_false_negatives" json:"mask_test_false_negatives"`
	Inference              bool `mapstructure:"inference" yaml:"inference" json:"inference"`

	// Execution
	Device string `mapstructure:"device" yaml:"device" json:"device" validate:"oneof=cpu cuda"`
	Seed   uint64 `mapstructure:"seed" yaml:"seed" json:"seed"`
}

// GraphConfig configures how action spaces are built from the triples
type GraphConfig struct {
	BucketInterval       int `mapstructure:"bucket_interval" yaml:"bucket_interval" json:"bucket_interval" validate:"gt=0"`
	ActionSpaceBandwidth int `mapstructure:"action_space_bandwidth" yaml:"action_space_bandwidth" json:"action_space_bandwidth" validate:"gt=0"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Policy: DefaultPolicyConfig(),
		Graph: GraphConfig{
			BucketInterval:       10,
			ActionSpaceBandwidth: 400,
		},
	}
}

// DefaultPolicyConfig returns the default policy hyperparameters
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		EntityDim:              200,
		RelationDim:            200,
		HistoryDim:             200,
		HistoryNumLayers:       3,
		HistoryCell:            "lstm",
		NumHeads:               4,
		NumTransformerLayers:   1,
		TransformerHiddenDim:   200,
		Bandwidth:              300,
		EmbDropoutRate:         0.3,
		FFDropoutRate:          0.1,
		ActionDropoutRate:      0.1,
		NumRollouts:            20,
		XavierInitialization:   true,
		MaskTestFalseNegatives: false,
		Device:                 "cpu",
		Seed:                   1,
	}
}

// ActionDim returns the size of an action embedding
func (c *PolicyConfig) ActionDim() int {
	if c.RelationOnly {
		return c.RelationDim
	}
	return c.EntityDim + c.RelationDim
}

// Validate checks the struct tags and the cross field constraints
func (c *PolicyConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return helper.NewError("validate policy config", err)
	}
	if c.RelationOnly && c.RelationOnlyInPath {
		return helper.NewError("validate policy config", errors.New("relation_only and relation_only_in_path are mutually exclusive"))
	}
	if c.EntityDim%c.NumHeads != 0 {
		return helper.NewError("validate policy config", fmt.Errorf("entity_dim %d is not divisible by num_heads %d", c.EntityDim, c.NumHeads))
	}
	return nil
}

// Validate checks the policy and graph sections
func (c *Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := configValidate.Struct(&c.Graph); err != nil {
		return helper.NewError("validate graph config", err)
	}
	return nil
}

// LoadConfig reads a YAML configuration file on top of the defaults.
// Every key can be overridden by an environment variable with the KGWALKER prefix,
// e.g. KGWALKER_POLICY_ENTITY_DIM. An empty path only applies defaults and environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("KGWALKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, helper.NewError("read config", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, helper.NewError("unmarshal config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SetDefaults registers the default configuration on a viper instance
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	defaults := map[string]interface{}{
		"policy.entity_dim":                d.Policy.EntityDim,
		"policy.relation_dim":              d.Policy.RelationDim,
		"policy.history_dim":               d.Policy.HistoryDim,
		"policy.history_num_layers":        d.Policy.HistoryNumLayers,
		"policy.history_cell":              d.Policy.HistoryCell,
		"policy.num_heads":                 d.Policy.NumHeads,
		"policy.num_transformer_layers":    d.Policy.NumTransformerLayers,
		"policy.transformer_hidden_dim":    d.Policy.TransformerHiddenDim,
		"policy.bandwidth":                 d.Policy.Bandwidth,
		"policy.emb_dropout_rate":          d.Policy.EmbDropoutRate,
		"policy.ff_dropout_rate":           d.Policy.FFDropoutRate,
		"policy.action_dropout_rate":       d.Policy.ActionDropoutRate,
		"policy.num_rollouts":              d.Policy.NumRollouts,
		"policy.relation_only":             d.Policy.RelationOnly,
		"policy.relation_only_in_path":     d.Policy.RelationOnlyInPath,
		"policy.xavier_initialization":     d.Policy.XavierInitialization,
		"policy.mask_test_false_negatives": d.Policy.MaskTestFalseNegatives,
		"policy.inference":                 d.Policy.Inference,
		"policy.device":                    d.Policy.Device,
		"policy.seed":                      d.Policy.Seed,
		"graph.bucket_interval":            d.Graph.BucketInterval,
		"graph.action_space_bandwidth":     d.Graph.ActionSpaceBandwidth,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// WriteYAML writes the configuration as YAML
func (c *Config) WriteYAML(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return helper.NewError("encode config", err)
	}
	return encoder.Close()
}
