package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects which deployment the harness runs against.
type Mode int

const (
	// ModeProduction targets a live cloud deployment.
	ModeProduction Mode = iota
	// ModeMimic targets a local simulator. The simulator does not publish
	// an autoscale entry in its service catalog, so the operator is
	// expected to set the autoscale override URL.
	ModeMimic
)

func (m Mode) String() string {
	if m == ModeMimic {
		return "mimic"
	}
	return "production"
}

// Default catalog keys under which the logical services are registered.
const (
	DefaultAutoscaleServiceName    = "autoscale"
	DefaultNovaServiceName         = "cloudServersOpenStack"
	DefaultLoadBalancerServiceName = "cloudLoadBalancers"
)

// DefaultBuildTimeout is the production-scale bound for server builds.
const DefaultBuildTimeout = 1800 * time.Second

// Config holds every operator-supplied option for a test run. It is
// constructed once at startup and read-only thereafter; nothing else in
// the harness reads the process environment.
type Config struct {
	IdentityEndpoint string
	Username         string
	Password         string

	Region    string
	FlavorRef string
	ImageRef  string

	// Tenant the convergence scenarios operate under, and the alternate
	// tenant used by auth-error scenarios.
	ConvergenceTenant           string
	ConvergenceTenantAuthErrors string

	// Catalog keys per logical service.
	AutoscaleServiceName    string
	NovaServiceName         string
	LoadBalancerServiceName string

	// AutoscaleLocalURL, when set, bypasses catalog lookup for the
	// autoscale service. It may contain the tenant placeholder "{0}".
	AutoscaleLocalURL string

	Mode Mode

	// BuildTimeout bounds how long provisioning waits poll for a server
	// to go ACTIVE. The resolver passes it through untouched.
	BuildTimeout time.Duration

	// Verbosity is handed to logging collaborators as-is.
	Verbosity int
}

// Load builds a Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		IdentityEndpoint:            getEnv("AS_IDENTITY_ENDPOINT", ""),
		Username:                    getEnv("AS_USERNAME", ""),
		Password:                    getEnv("AS_PASSWORD", ""),
		Region:                      getEnv("AS_REGION", ""),
		FlavorRef:                   getEnv("AS_FLAVOR_REF", ""),
		ImageRef:                    getEnv("AS_IMAGE_REF", ""),
		ConvergenceTenant:           getEnv("AS_CONVERGENCE_TENANT", ""),
		ConvergenceTenantAuthErrors: getEnv("AS_CONVERGENCE_TENANT_AUTH_ERRORS", ""),
		AutoscaleServiceName:        getEnv("AS_AUTOSCALE_SERVICE_NAME", DefaultAutoscaleServiceName),
		NovaServiceName:             getEnv("AS_NOVA_SERVICE_NAME", DefaultNovaServiceName),
		LoadBalancerServiceName:     getEnv("AS_CLB_SERVICE_NAME", DefaultLoadBalancerServiceName),
		AutoscaleLocalURL:           getEnv("AS_AUTOSCALE_LOCAL_URL", ""),
		BuildTimeout:                time.Duration(getEnvInt("AS_BUILD_TIMEOUT_SECONDS", int(DefaultBuildTimeout/time.Second))) * time.Second,
		Verbosity:                   getEnvInt("AS_VERBOSITY", 0),
	}

	mode, err := parseMode(getEnv("AS_USING_MIMIC", "false"))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads key/value pairs from an env file into the process
// environment (without overriding keys already set) and then builds the
// Config from the result.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	return Load()
}

// Validate reports every missing required option at once so a broken
// environment is diagnosable in a single run.
func (c *Config) Validate() error {
	var missing []string
	for key, val := range map[string]string{
		"AS_IDENTITY_ENDPOINT": c.IdentityEndpoint,
		"AS_USERNAME":          c.Username,
		"AS_PASSWORD":          c.Password,
		"AS_REGION":            c.Region,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ConfigurationError{
			Reason: "missing required options: " + strings.Join(missing, ", "),
		}
	}
	if c.BuildTimeout <= 0 {
		return &ConfigurationError{Reason: "AS_BUILD_TIMEOUT_SECONDS must be positive"}
	}
	return nil
}

// ConfigurationError is fatal and surfaced before any test executes.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func parseMode(v string) (Mode, error) {
	switch strings.ToLower(v) {
	case "", "false", "0", "no":
		return ModeProduction, nil
	case "true", "1", "yes":
		return ModeMimic, nil
	}
	return ModeProduction, &ConfigurationError{Reason: "AS_USING_MIMIC must be a boolean, got " + strconv.Quote(v)}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
