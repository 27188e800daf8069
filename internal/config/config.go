package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rohmanhakim/politebot/internal/build"
	"github.com/rohmanhakim/politebot/pkg/fileutil"
	"gopkg.in/yaml.v3"
)

var (
	botNamePattern    = regexp.MustCompile(`^[a-zA-Z_-]+$`)
	botVersionPattern = regexp.MustCompile(`^\d+(\.\d+){0,2}$`)
)

type Config struct {
	//===============
	// Identity
	//===============
	// Token robots.txt user-agent lines are matched against
	botName string
	// Advertised as <botName>/<botVersion>; formatted as #, #.# or #.#.#
	botVersion string
	// Page describing the bot; defaults to the project homepage in the user-agent
	policyURL string
	// Replaces the generated user-agent header entirely
	userAgent string
	// Drops the library marker from the generated user-agent
	hideLibraryAgent bool

	//===============
	// Politeness
	//===============
	// Lower bound of the wait between two requests to the same origin
	minimumDelay time.Duration
	// Requests that would have to wait longer than this fail instead
	maximumDelay time.Duration
	// Randomized variation added on top of the effective delay
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// How long a fetched robots.txt is trusted
	robotsTTL time.Duration
	// Upper bound of remembered origins, 0 for unbounded
	maxOrigins int

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch attempt
	timeout time.Duration
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration
	// Turns the response cache off for every request
	disableCaching bool
	// Number of buffered responses kept for reuse
	responseCacheSize int
	// How long a cached response stays fresh
	responseCacheTTL time.Duration
	// How long a resolved host is reused
	dnsCacheTTL time.Duration
}

type configDTO struct {
	Name                   string   `json:"name" yaml:"name"`
	Version                string   `json:"version" yaml:"version"`
	PolicyURL              string   `json:"policyURL,omitempty" yaml:"policyURL,omitempty"`
	UserAgent              string   `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	HideLibraryAgent       bool     `json:"hideLibraryAgent,omitempty" yaml:"hideLibraryAgent,omitempty"`
	MinimumRequestDelay    Duration `json:"minimumRequestDelay,omitempty" yaml:"minimumRequestDelay,omitempty"`
	MaximumRequestDelay    Duration `json:"maximumRequestDelay,omitempty" yaml:"maximumRequestDelay,omitempty"`
	Jitter                 Duration `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	RandomSeed             int64    `json:"randomSeed,omitempty" yaml:"randomSeed,omitempty"`
	RobotsTTL              Duration `json:"robotsTTL,omitempty" yaml:"robotsTTL,omitempty"`
	MaxOrigins             int      `json:"maxOrigins,omitempty" yaml:"maxOrigins,omitempty"`
	Timeout                Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxAttempt             int      `json:"maxAttempt,omitempty" yaml:"maxAttempt,omitempty"`
	BackoffInitialDuration Duration `json:"backoffInitialDuration,omitempty" yaml:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64  `json:"backoffMultiplier,omitempty" yaml:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     Duration `json:"backoffMaxDuration,omitempty" yaml:"backoffMaxDuration,omitempty"`
	DisableCaching         bool     `json:"disableCaching,omitempty" yaml:"disableCaching,omitempty"`
	ResponseCacheSize      int      `json:"responseCacheSize,omitempty" yaml:"responseCacheSize,omitempty"`
	ResponseCacheTTL       Duration `json:"responseCacheTTL,omitempty" yaml:"responseCacheTTL,omitempty"`
	DNSCacheTTL            Duration `json:"dnsCacheTTL,omitempty" yaml:"dnsCacheTTL,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	builder := WithDefault(dto.Name, dto.Version)

	// Only override if a non-zero value is provided
	if dto.PolicyURL != "" {
		builder.WithPolicyURL(dto.PolicyURL)
	}
	if dto.UserAgent != "" {
		builder.WithUserAgent(dto.UserAgent)
	}
	builder.WithHideLibraryAgent(dto.HideLibraryAgent)
	if dto.MinimumRequestDelay != 0 {
		builder.WithMinimumDelay(dto.MinimumRequestDelay.Std())
	}
	if dto.MaximumRequestDelay != 0 {
		builder.WithMaximumDelay(dto.MaximumRequestDelay.Std())
	}
	if dto.Jitter != 0 {
		builder.WithJitter(dto.Jitter.Std())
	}
	if dto.RandomSeed != 0 {
		builder.WithRandomSeed(dto.RandomSeed)
	}
	if dto.RobotsTTL != 0 {
		builder.WithRobotsTTL(dto.RobotsTTL.Std())
	}
	if dto.MaxOrigins != 0 {
		builder.WithMaxOrigins(dto.MaxOrigins)
	}
	if dto.Timeout != 0 {
		builder.WithTimeout(dto.Timeout.Std())
	}
	if dto.MaxAttempt != 0 {
		builder.WithMaxAttempt(dto.MaxAttempt)
	}
	if dto.BackoffInitialDuration != 0 {
		builder.WithBackoffInitialDuration(dto.BackoffInitialDuration.Std())
	}
	if dto.BackoffMultiplier != 0 {
		builder.WithBackoffMultiplier(dto.BackoffMultiplier)
	}
	if dto.BackoffMaxDuration != 0 {
		builder.WithBackoffMaxDuration(dto.BackoffMaxDuration.Std())
	}
	builder.WithDisableCaching(dto.DisableCaching)
	if dto.ResponseCacheSize != 0 {
		builder.WithResponseCacheSize(dto.ResponseCacheSize)
	}
	if dto.ResponseCacheTTL != 0 {
		builder.WithResponseCacheTTL(dto.ResponseCacheTTL.Std())
	}
	if dto.DNSCacheTTL != 0 {
		builder.WithDNSCacheTTL(dto.DNSCacheTTL.Std())
	}

	return builder.Build()
}

// WithConfigFile loads a JSON (.json) or YAML (.yaml, .yml) config file.
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	switch ext := strings.ToLower(fileutil.GetFileExtension(path)); ext {
	case "json":
		err = json.Unmarshal(configContent, &cfgDTO)
	case "yaml", "yml":
		err = yaml.Unmarshal(configContent, &cfgDTO)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

// WithDefault creates a new Config for the given bot identity and default values for all other fields.
// name and version are validated by Build.
func WithDefault(name, version string) *Config {
	defaultConfig := Config{
		botName:                name,
		botVersion:             version,
		minimumDelay:           1000 * time.Millisecond,
		maximumDelay:           10000 * time.Millisecond,
		jitter:                 0,
		randomSeed:             time.Now().UnixNano(),
		robotsTTL:              24 * time.Hour,
		maxOrigins:             0,
		timeout:                60 * time.Second,
		maxAttempt:             3,
		backoffInitialDuration: 500 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     5 * time.Second,
		responseCacheSize:      50,
		responseCacheTTL:       time.Hour,
		dnsCacheTTL:            5 * time.Minute,
	}
	return &defaultConfig
}

func (c *Config) WithName(name string) *Config {
	c.botName = name
	return c
}

func (c *Config) WithVersion(version string) *Config {
	c.botVersion = version
	return c
}

func (c *Config) WithPolicyURL(policyURL string) *Config {
	c.policyURL = policyURL
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithHideLibraryAgent(hide bool) *Config {
	c.hideLibraryAgent = hide
	return c
}

func (c *Config) WithMinimumDelay(delay time.Duration) *Config {
	c.minimumDelay = delay
	return c
}

func (c *Config) WithMaximumDelay(delay time.Duration) *Config {
	c.maximumDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithRobotsTTL(ttl time.Duration) *Config {
	c.robotsTTL = ttl
	return c
}

func (c *Config) WithMaxOrigins(n int) *Config {
	c.maxOrigins = n
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithDisableCaching(disable bool) *Config {
	c.disableCaching = disable
	return c
}

func (c *Config) WithResponseCacheSize(size int) *Config {
	c.responseCacheSize = size
	return c
}

func (c *Config) WithResponseCacheTTL(ttl time.Duration) *Config {
	c.responseCacheTTL = ttl
	return c
}

func (c *Config) WithDNSCacheTTL(ttl time.Duration) *Config {
	c.dnsCacheTTL = ttl
	return c
}

func (c *Config) Build() (Config, error) {
	if !botNamePattern.MatchString(c.botName) {
		return Config{}, fmt.Errorf("%w: bot name %q must only contain a-zA-Z_-", ErrInvalidConfig, c.botName)
	}
	if !botVersionPattern.MatchString(c.botVersion) {
		return Config{}, fmt.Errorf("%w: version %q must be formatted as #, #.#, or #.#.#", ErrInvalidConfig, c.botVersion)
	}
	if c.policyURL != "" {
		parsed, err := url.Parse(c.policyURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return Config{}, fmt.Errorf("%w: invalid policy URL %q", ErrInvalidConfig, c.policyURL)
		}
	}
	if c.minimumDelay < 0 || c.maximumDelay < 0 {
		return Config{}, fmt.Errorf("%w: request delays cannot be negative", ErrInvalidConfig)
	}
	if c.minimumDelay > c.maximumDelay {
		return Config{}, fmt.Errorf("%w: minimum delay %v exceeds maximum delay %v", ErrInvalidConfig, c.minimumDelay, c.maximumDelay)
	}
	if c.jitter < 0 {
		return Config{}, fmt.Errorf("%w: jitter cannot be negative", ErrInvalidConfig)
	}
	if c.timeout <= 0 {
		return Config{}, fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.maxAttempt < 1 {
		return Config{}, fmt.Errorf("%w: maxAttempt must be at least 1", ErrInvalidConfig)
	}
	if c.robotsTTL <= 0 {
		return Config{}, fmt.Errorf("%w: robotsTTL must be positive", ErrInvalidConfig)
	}
	if c.maxOrigins < 0 || c.responseCacheSize < 0 {
		return Config{}, fmt.Errorf("%w: cache bounds cannot be negative", ErrInvalidConfig)
	}

	return *c, nil
}

func (c Config) BotName() string {
	return c.botName
}

func (c Config) BotVersion() string {
	return c.botVersion
}

func (c Config) PolicyURL() string {
	return c.policyURL
}

// UserAgent is the header value sent with every request:
// "<name>/<version> (+<policy url>) politebot/<version>" unless overridden.
func (c Config) UserAgent() string {
	if c.userAgent != "" {
		return c.userAgent
	}

	policy := c.policyURL
	if policy == "" {
		policy = build.HomepageURL
	}
	agent := fmt.Sprintf("%s/%s (+%s)", c.botName, c.botVersion, policy)
	if !c.hideLibraryAgent {
		agent += " " + build.LibraryAgent()
	}
	return agent
}

func (c Config) HideLibraryAgent() bool {
	return c.hideLibraryAgent
}

func (c Config) MinimumDelay() time.Duration {
	return c.minimumDelay
}

func (c Config) MaximumDelay() time.Duration {
	return c.maximumDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) RobotsTTL() time.Duration {
	return c.robotsTTL
}

func (c Config) MaxOrigins() int {
	return c.maxOrigins
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) DisableCaching() bool {
	return c.disableCaching
}

func (c Config) ResponseCacheSize() int {
	return c.responseCacheSize
}

func (c Config) ResponseCacheTTL() time.Duration {
	return c.responseCacheTTL
}

func (c Config) DNSCacheTTL() time.Duration {
	return c.dnsCacheTTL
}
