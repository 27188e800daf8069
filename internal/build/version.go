package build

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

const (
	// LibraryToken is the lowercase agent token this library identifies itself with.
	// robots.txt groups whose user-agent contains it apply to every bot built on it.
	LibraryToken = "politebot"

	// HomepageURL is advertised in the user-agent when no policy URL is configured.
	HomepageURL = "https://github.com/rohmanhakim/politebot"
)

// FullVersion returns the version string with commit hash appended.
// Format: "Version+Commit" (e.g., "1.0.0+abc123")
func FullVersion() string {
	return Version + "+" + Commit
}

// LibraryAgent returns the library marker appended to outbound user-agents,
// e.g. "politebot/1.2.0".
func LibraryAgent() string {
	return LibraryToken + "/" + Version
}
