package flags

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
)

const (
	// Env vars
	EnvVarConfigFile = "POSTREVIEW_CONFIG_FILE"
	EnvVarLogPath    = "POSTREVIEW_LOG_PATH"
	EnvVarLogLevel   = "POSTREVIEW_LOG_LEVEL"
	EnvVarServerURL  = "POSTREVIEW_SERVER"

	// Defaults
	DefaultConfigFile = ".postreview.toml"
	DefaultLogPath    = ""
	DefaultLogLevel   = "info"

	// Flag names
	FlagNameConfigFile = "config-file"
	FlagNameLogPath    = "log-path"
	FlagNameLogLevel   = "log-level"
	FlagNameServerURL  = "server"
)

var (
	ConfigFile string
	LogPath    string
	LogLevel   string
	ServerURL  string
)

func InitFlags(fs *pflag.FlagSet) {
	initConfigFile(fs)
	initLogger(fs)
	initServer(fs)
}

func initConfigFile(fs *pflag.FlagSet) {
	if ConfigFile == "" {
		if env := strings.TrimSpace(os.Getenv(EnvVarConfigFile)); env != "" {
			ConfigFile = env
		} else {
			ConfigFile = DefaultConfigFile
		}
	}
	fs.StringVar(&ConfigFile, FlagNameConfigFile, ConfigFile, "path to config file")
}

func initLogger(fs *pflag.FlagSet) {
	if LogPath == "" {
		if env := strings.TrimSpace(os.Getenv(EnvVarLogPath)); env != "" {
			LogPath = env
		} else {
			LogPath = DefaultLogPath
		}
	}
	fs.StringVar(&LogPath, FlagNameLogPath, LogPath, "path to generated log file")

	if LogLevel == "" {
		if env := strings.TrimSpace(os.Getenv(EnvVarLogLevel)); env != "" {
			LogLevel = strings.ToLower(env)
		} else {
			LogLevel = DefaultLogLevel
		}
	}
	fs.StringVar(&LogLevel, FlagNameLogLevel, LogLevel, "log level for postreview logs")
}

func initServer(fs *pflag.FlagSet) {
	if ServerURL == "" {
		ServerURL = strings.TrimSpace(os.Getenv(EnvVarServerURL))
	}
	fs.StringVar(&ServerURL, FlagNameServerURL, ServerURL, "review server URL (overrides config file)")
}
