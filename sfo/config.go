package sfo

import (
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// ConfKeyAddPerIteration is the parameter name for the per-round add count,
// as it appears in YAML files and on the command line.
const ConfKeyAddPerIteration = "add_per_iteration"

// Config holds the merge step's parameters. It is validated once, when a
// Merger is constructed.
type Config struct {
	// AddPerIteration is the number of top-ranked candidates added each round.
	AddPerIteration int `yaml:"add_per_iteration" json:"add_per_iteration" validate:"gte=1"`

	// LogTopK bounds how many ranked candidates are logged at debug level.
	// 0 logs every candidate.
	LogTopK int `yaml:"log_top_k" json:"log_top_k" validate:"gte=0"`

	// WarnNonPositiveGain emits a warning when a selected candidate does not
	// improve the log-likelihood.
	WarnNonPositiveGain bool `yaml:"warn_non_positive_gain" json:"warn_non_positive_gain"`

	// EvaluatorConcurrency limits how many evaluators run at once during a
	// round. 0 means one goroutine per CPU.
	EvaluatorConcurrency int `yaml:"evaluator_concurrency" json:"evaluator_concurrency" validate:"gte=0"`
}

// DefaultConfig returns the defaults: one feature per round.
func DefaultConfig() Config {
	return Config{
		AddPerIteration:     1,
		WarnNonPositiveGain: true,
	}
}

// ConfigOption is a functional option for Config.
type ConfigOption func(*Config)

// WithAddPerIteration sets the number of features added per round.
func WithAddPerIteration(n int) ConfigOption {
	return func(c *Config) {
		c.AddPerIteration = n
	}
}

// WithLogTopK bounds the number of ranked candidates logged per round.
func WithLogTopK(k int) ConfigOption {
	return func(c *Config) {
		c.LogTopK = k
	}
}

// WithEvaluatorConcurrency limits concurrent evaluators.
func WithEvaluatorConcurrency(n int) ConfigOption {
	return func(c *Config) {
		c.EvaluatorConcurrency = n
	}
}

// NewConfig builds a validated Config from DefaultConfig and opts.
func NewConfig(opts ...ConfigOption) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, cfg.Validate()
}

var configValidate = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	// report yaml names so errors match what the user wrote
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks every field and returns the first violation as a ValidationError.
func (c Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if sfoerrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return sfoerrors.NewValidationError(fe.Field(), "must satisfy "+fe.Tag()+"="+fe.Param(), fe.Value())
	}
	return sfoerrors.Wrap(err, "validate config")
}

// LoadConfig reads a YAML config file. Keys absent from the file keep their
// defaults. The result is validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, sfoerrors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, sfoerrors.Wrap(err, "parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
