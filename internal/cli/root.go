package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rohmanhakim/politebot/internal/build"
	"github.com/rohmanhakim/politebot/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	defaultBotName    = "politebot"
	defaultBotVersion = "1.0"
	defaultMinDelay   = 1000 * time.Millisecond
	defaultMaxDelay   = 10000 * time.Millisecond
	defaultTimeout    = 60 * time.Second
	defaultLogLevel   = "info"
)

var (
	cfgFile          string
	botName          string
	botVersion       string
	policyURL        string
	userAgent        string
	hideLibraryAgent bool
	minDelay         time.Duration
	maxDelay         time.Duration
	timeout          time.Duration
	logLevel         string
	logJSON          bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "politebot",
	Short: "A polite HTTP client that honors robots.txt.",
	Long: `politebot requests web pages the way a well-behaved bot should.

Before each request it consults the origin's robots.txt (RFC 9309), refuses
disallowed paths, and spaces requests to the same origin by the larger of the
declared crawl-delay and the configured minimum delay.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.ErrOrStderr(), logLevel, logJSON)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := ExecuteContext(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// ExecuteContext runs the command line args with the given output streams.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path, .json or .yaml (e.g., /home/myuser/politebot.yaml)")
	rootCmd.PersistentFlags().StringVar(&botName, "name", defaultBotName, "bot name, matched against robots.txt user-agent lines")
	rootCmd.PersistentFlags().StringVar(&botVersion, "version-string", defaultBotVersion, "bot version advertised in the user-agent (#, #.# or #.#.#)")
	rootCmd.PersistentFlags().StringVar(&policyURL, "policy-url", "", "URL describing the bot, advertised in the user-agent")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "override the composed user-agent header")
	rootCmd.PersistentFlags().BoolVar(&hideLibraryAgent, "hide-library-agent", false, "omit the politebot/<version> marker from the user-agent")
	rootCmd.PersistentFlags().DurationVar(&minDelay, "min-delay", defaultMinDelay, "minimum delay between requests to the same origin")
	rootCmd.PersistentFlags().DurationVar(&maxDelay, "max-delay", defaultMaxDelay, "longest wait accepted before a request is refused")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "timeout for one HTTP attempt")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
}

// setupLogging configures the global zerolog logger. Logs go to w so that
// stdout stays reserved for command output.
func setupLogging(w io.Writer, level string, jsonOutput bool) error {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return fmt.Errorf("invalid log level %q", level)
	}

	if jsonOutput {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return nil
}

// InitConfigWithError builds the bot config from the config file when one is
// given, otherwise from the command line flags.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		log.Debug().Str("path", cfgFile).Msg("initializing config from file")
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	configBuilder := config.WithDefault(botName, botVersion).
		WithMinimumDelay(minDelay).
		WithMaximumDelay(maxDelay)

	if policyURL != "" {
		configBuilder = configBuilder.WithPolicyURL(policyURL)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if hideLibraryAgent {
		configBuilder = configBuilder.WithHideLibraryAgent(hideLibraryAgent)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func versionString() string {
	return fmt.Sprintf("politebot %s (built %s)", build.FullVersion(), build.BuildTime)
}

func ResetFlags() {
	cfgFile = ""
	botName = defaultBotName
	botVersion = defaultBotVersion
	policyURL = ""
	userAgent = ""
	hideLibraryAgent = false
	minDelay = defaultMinDelay
	maxDelay = defaultMaxDelay
	timeout = defaultTimeout
	logLevel = defaultLogLevel
	logJSON = false
	resetFetchFlags()
	resetRobotsFlags()
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetBotNameForTest(name string) {
	botName = name
}

func SetBotVersionForTest(version string) {
	botVersion = version
}

func SetPolicyURLForTest(url string) {
	policyURL = url
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetHideLibraryAgentForTest(hide bool) {
	hideLibraryAgent = hide
}

func SetMinDelayForTest(delay time.Duration) {
	minDelay = delay
}

func SetMaxDelayForTest(delay time.Duration) {
	maxDelay = delay
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}
