// Package config loads and validates the run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/regimeblend/internal/config/regime"
	"github.com/sawpanic/regimeblend/internal/portfolio/blend"
	"github.com/sawpanic/regimeblend/internal/portfolio/cash"
	"github.com/sawpanic/regimeblend/internal/portfolio/smoother"
	"github.com/sawpanic/regimeblend/internal/regime/chop"
	"github.com/sawpanic/regimeblend/internal/regime/crisis"
	"github.com/sawpanic/regimeblend/internal/regime/vol"
	"github.com/sawpanic/regimeblend/internal/report/perf"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "REGIMEBLEND_"

// DefaultPath is used when no --config flag is given.
const DefaultPath = "configs/regimeblend.yaml"

// Config is the complete run configuration.
type Config struct {
	Data     DataConfig       `yaml:"data"`
	Vol      vol.Config       `yaml:"vol"`
	Crisis   crisis.Config    `yaml:"crisis"`
	Chop     ChopConfig       `yaml:"chop"`
	Smoother SmootherConfig   `yaml:"smoother"`
	Cash     CashConfig       `yaml:"cash"`
	Blend    blend.Config     `yaml:"blend"`
	Weights  regime.WeightMap `yaml:"regime_weights"`
	Report   perf.Config      `yaml:"report"`
	Log      LogConfig        `yaml:"log"`
	Storage  StorageConfig    `yaml:"storage"`
	Cache    CacheConfig      `yaml:"cache"`
	Output   OutputConfig     `yaml:"output"`
}

// DataConfig names the input columns.
type DataConfig struct {
	DateColumn     string `yaml:"date_column" default:"date" validate:"required"`
	PriceColumn    string `yaml:"price_column" default:"price" validate:"required"`
	CreditColumn   string `yaml:"credit_column" default:"credit" validate:"required"`
	VixColumn      string `yaml:"vix_column" default:"vix" validate:"required"`
	PositionColumn string `yaml:"position_column" default:"position" validate:"required"`
	ReturnColumn   string `yaml:"return_column" default:"return" validate:"required"`
	ChopColumn     string `yaml:"chop_column" default:"chop_regime" validate:"required"`
	// MaxFillGap bounds forward filling of the credit and vix columns.
	MaxFillGap int `yaml:"max_fill_gap" default:"5" validate:"gte=0"`
}

// ChopConfig selects the chop classifier.
type ChopConfig struct {
	Source string         `yaml:"source" default:"adx" validate:"oneof=none labels adx"`
	ADX    chop.ADXConfig `yaml:"adx"`
}

// SmootherConfig parameterises the transition smoother.
type SmootherConfig struct {
	Window int    `yaml:"window" default:"5" validate:"gte=1"`
	Method string `yaml:"method" default:"exponential" validate:"oneof=exponential linear none"`
}

// CashConfig parameterises the cash policy and its checks.
type CashConfig struct {
	Method       string  `yaml:"method" default:"scale_down" validate:"oneof=scale_down explicit hybrid"`
	DefensiveMin float64 `yaml:"defensive_min_cash" default:"0.45" validate:"gte=0,lte=1"`
	NormalMax    float64 `yaml:"normal_max_cash" default:"0.10" validate:"gte=0,lte=1"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"auto" validate:"oneof=auto console json"`
}

// StorageConfig points at the run store. Postgres DSNs use the lib/pq
// format; sqlite://path selects the embedded driver.
type StorageConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" default:"5" validate:"gte=1"`
	MaxIdleConns    int    `yaml:"max_idle_conns" default:"2" validate:"gte=0"`
	QueryTimeoutSec int    `yaml:"query_timeout_sec" default:"10" validate:"gte=1"`
}

// CacheConfig selects where the latest regime snapshot is published.
type CacheConfig struct {
	Backend  string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	TTLHours int    `yaml:"ttl_hours" default:"24" validate:"gte=1"`
}

// OutputConfig controls artifact writing.
type OutputConfig struct {
	Dir            string `yaml:"dir" default:"out" validate:"required"`
	DisableMetrics bool   `yaml:"disable_metrics"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns a fully defaulted configuration with the built-in weight
// table.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.Weights = *regime.DefaultWeightMap()
	return cfg
}

// Load reads path, applies defaults and REGIMEBLEND_* overrides, and
// validates the result. A .env file in the working directory is loaded
// first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Key: "path", Reason: fmt.Sprintf("read %q: %v", path, err), Err: err}
	}
	return Parse(data)
}

// Parse decodes a YAML document into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("parse YAML: %v", err), Err: err}
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("apply defaults: %v", err), Err: err}
	}
	if len(cfg.Weights.Regimes) == 0 {
		tol := cfg.Weights.Validation
		cfg.Weights = *regime.DefaultWeightMap()
		cfg.Weights.Validation = tol
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets deployment secrets and toggles bypass the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "DB_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Backend = "redis"
	}
	if v := os.Getenv(EnvPrefix + "REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
}

// Validate runs the struct rules and then each component's own
// consistency checks. The first failure is returned as a
// ConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return translate(err)
	}

	checks := []struct {
		key string
		fn  func() error
	}{
		{"vol", c.Vol.Validate},
		{"crisis", c.Crisis.Validate},
		{"chop.adx", c.Chop.ADX.Validate},
		{"blend", c.Blend.Validate},
		{"smoother", func() error {
			_, err := smoother.New(c.Smoother.Window, smoother.Method(c.Smoother.Method))
			return err
		}},
		{"cash", func() error {
			_, err := cash.NewPolicy(cash.Method(c.Cash.Method), c.Cash.DefensiveMin, c.Cash.NormalMax)
			return err
		}},
		{"regime_weights", func() error {
			return regime.NewWeightsLoader().Load(&c.Weights)
		}},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return configErr(chk.key, err)
		}
	}
	return nil
}

// WeightsLoader returns a loader holding the validated weight table.
func (c *Config) WeightsLoader() (*regime.WeightsLoader, error) {
	wl := regime.NewWeightsLoader()
	if err := wl.Load(&c.Weights); err != nil {
		return nil, configErr("regime_weights", err)
	}
	return wl, nil
}

// translate maps the first validator failure onto a ConfigurationError
// keyed by its YAML path.
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigurationError{Reason: err.Error(), Err: err}
	}
	fe := verrs[0]
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}
	return &ConfigurationError{Key: key, Reason: describe(fe), Err: err}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
