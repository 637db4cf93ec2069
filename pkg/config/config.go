package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	Prod = "prod"
	Dev  = "dev"
	Test = "test"
)

// PresentationPrefix is the only route family reachable while the gate is restricted.
const PresentationPrefix = "/presentation"

var ErrInvalidConfig = errors.New("invalid config")

type Gate struct {
	Gate GateBox `yaml:"gate" mapstructure:"gate"`
}

type GateBox struct {
	Env string `yaml:"env" mapstructure:"env"`
	// RestrictToPresentationOnly: when true only paths beginning with /presentation
	// are reachable, every other page renders the not found view.
	// When false all paths are reachable. Read once at start, restart to change.
	RestrictToPresentationOnly bool     `yaml:"restrict_to_presentation_only" mapstructure:"restrict_to_presentation_only"`
	Api                        Api      `yaml:"api" mapstructure:"api"`
	Upstream                   Upstream `yaml:"upstream" mapstructure:"upstream"`
	Assets                     Assets   `yaml:"assets" mapstructure:"assets"`
	Logs                       Logs     `yaml:"logs" mapstructure:"logs"`
	K8S                        K8S      `yaml:"k8s" mapstructure:"k8s"`
}

type Api struct {
	Name string `yaml:"name" mapstructure:"name"` // used as the Server header value
	Port string `yaml:"port" mapstructure:"port"`
}

type Upstream struct {
	Url     string        `yaml:"url" mapstructure:"url"` // e.g. "http://localhost:3000"
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Rate    float64       `yaml:"rate" mapstructure:"rate"` // requests per second, 0 means unlimited
	Burst   int           `yaml:"burst" mapstructure:"burst"`
	Cache   UpstreamCache `yaml:"cache" mapstructure:"cache"`
}

type UpstreamCache struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxCost int64         `yaml:"max_cost" mapstructure:"max_cost"` // bytes of cached bodies
}

type Assets struct {
	// PassthroughPrefixes are served by the upstream before any page guarding
	// (framework bundles, favicon and so on).
	PassthroughPrefixes []string `yaml:"passthrough_prefixes" mapstructure:"passthrough_prefixes"`
}

type Logs struct {
	Level string `yaml:"level" mapstructure:"level"` // zerolog level name
}

type K8S struct {
	Probe Probe `yaml:"probe" mapstructure:"probe"`
}

type Probe struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RestrictToPresentationOnly reports whether the gate only lets /presentation through.
func (c *Gate) RestrictToPresentationOnly() bool {
	return c.Gate.RestrictToPresentationOnly
}

func (c *Gate) IsProd() bool { return c.Gate.Env == Prod }
func (c *Gate) IsDev() bool  { return c.Gate.Env == Dev }
func (c *Gate) IsTest() bool { return c.Gate.Env == Test }

func (c *Gate) Api() Api           { return c.Gate.Api }
func (c *Gate) Upstream() Upstream { return c.Gate.Upstream }
func (c *Gate) Assets() Assets     { return c.Gate.Assets }
func (c *Gate) Logs() Logs         { return c.Gate.Logs }
func (c *Gate) K8S() K8S           { return c.Gate.K8S }

// Dump renders the effective configuration as yaml.
func (c *Gate) Dump() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gate.env", Dev)
	v.SetDefault("gate.restrict_to_presentation_only", false)
	v.SetDefault("gate.api.name", "presentation.gate")
	v.SetDefault("gate.api.port", "8020")
	v.SetDefault("gate.upstream.url", "http://localhost:3000")
	v.SetDefault("gate.upstream.timeout", "10s")
	v.SetDefault("gate.upstream.rate", 0)
	v.SetDefault("gate.upstream.burst", 0)
	v.SetDefault("gate.upstream.cache.enabled", false)
	v.SetDefault("gate.upstream.cache.ttl", "5s")
	v.SetDefault("gate.upstream.cache.max_cost", 64<<20)
	v.SetDefault("gate.assets.passthrough_prefixes", []string{"/_next/", "/favicon.ico"})
	v.SetDefault("gate.logs.level", "info")
	v.SetDefault("gate.k8s.probe.timeout", "5s")
}

// LoadConfig reads the yaml file by path on top of defaults.
// Environment variables present at start override file values, e.g.
// GATE_RESTRICT_TO_PRESENTATION_ONLY=true. A missing file is not an error.
func LoadConfig(path string) (*Gate, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Gate{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the ambient sections. The restriction flag has no invalid states.
func (c *Gate) Validate() error {
	switch c.Gate.Env {
	case Prod, Dev, Test:
	default:
		return fmt.Errorf("%w: unknown env '%s'", ErrInvalidConfig, c.Gate.Env)
	}

	if strings.TrimPrefix(c.Gate.Api.Port, ":") == "" {
		return fmt.Errorf("%w: api.port is empty", ErrInvalidConfig)
	}

	u, err := url.Parse(c.Gate.Upstream.Url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: upstream.url '%s' must be an absolute http(s) url", ErrInvalidConfig, c.Gate.Upstream.Url)
	}

	if c.Gate.Upstream.Timeout <= 0 {
		return fmt.Errorf("%w: upstream.timeout must be positive", ErrInvalidConfig)
	}
	if c.Gate.Upstream.Rate < 0 || c.Gate.Upstream.Burst < 0 {
		return fmt.Errorf("%w: upstream.rate and upstream.burst must not be negative", ErrInvalidConfig)
	}
	if c.Gate.Upstream.Cache.Enabled && (c.Gate.Upstream.Cache.TTL <= 0 || c.Gate.Upstream.Cache.MaxCost <= 0) {
		return fmt.Errorf("%w: upstream.cache requires positive ttl and max_cost", ErrInvalidConfig)
	}

	for _, prefix := range c.Gate.Assets.PassthroughPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("%w: asset prefix '%s' must begin with '/'", ErrInvalidConfig, prefix)
		}
	}

	return nil
}
