// Package engine drives the simulation: it pulls bars from a data source,
// routes them through the strategy, risk, execution, and ledger layers in a
// fixed per-bar order, and persists the results.
package engine

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-backtest/internal/execution"
	"github.com/rxtech-lab/argo-backtest/internal/risk"
	"github.com/rxtech-lab/argo-backtest/internal/strategy"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// Config is the full configuration for one run.
type Config struct {
	// InitialCapital is the starting cash balance.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" validate:"required,gt=0"`
	// StartTime and EndTime bound the bars consumed from the data source.
	// Either may be omitted.
	StartTime *time.Time `yaml:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime   *time.Time `yaml:"end_time,omitempty" json:"end_time,omitempty"`

	Strategy  strategy.Config  `yaml:"strategy" json:"strategy" validate:"required"`
	Risk      risk.Config      `yaml:"risk" json:"risk" validate:"required"`
	Execution execution.Config `yaml:"execution,omitempty" json:"execution,omitempty"`
}

// Validate checks the whole configuration tree.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid run configuration", err)
	}

	if c.StartTime != nil && c.EndTime != nil && c.EndTime.Before(*c.StartTime) {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"end_time %s is before start_time %s", c.EndTime, c.StartTime)
	}

	if err := c.Risk.Validate(); err != nil {
		return err
	}

	return c.Execution.Validate()
}

// LoadConfig reads and validates a YAML run configuration.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config %s", path)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// ConfigSchema returns the JSON schema for the run configuration, for
// editor completion and external validation.
func ConfigSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{ExpandedStruct: true}

	return reflector.Reflect(&Config{})
}
