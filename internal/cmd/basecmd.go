package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/reviewtools/postreview/internal/api"
	"github.com/reviewtools/postreview/internal/cache"
	"github.com/reviewtools/postreview/internal/execx"
	"github.com/reviewtools/postreview/internal/flags"
	"github.com/reviewtools/postreview/internal/scm"
	"github.com/reviewtools/postreview/internal/scm/bzr"
	"github.com/reviewtools/postreview/internal/scm/svn"
)

type BaseCmd struct {
	logger hclog.Logger
}

// SetLogger updates the command's logger
func (c *BaseCmd) SetLogger(logger hclog.Logger) {
	c.logger = logger
}

// Logger returns the current logger for the command
func (c *BaseCmd) Logger() hclog.Logger {
	if c.logger != nil {
		return c.logger
	}

	// Get log level from flags first, then environment, then default
	logLevel := flags.LogLevel
	if logLevel == "" {
		logLevel = strings.ToLower(os.Getenv(flags.EnvVarLogLevel))
		if logLevel == "" {
			logLevel = flags.DefaultLogLevel
		}
	}

	// Get log path from flags first, then environment
	logPath := flags.LogPath
	if logPath == "" {
		logPath = strings.TrimSpace(os.Getenv(flags.EnvVarLogPath))
	}

	// Configure logger output
	var output io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file (%s): %v, using stderr\n", logPath, err)
		} else {
			output = f
		}
	}

	// Using flags/env for fallback logger
	c.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "postreview-default",
		Level:  hclog.LevelFromString(logLevel),
		Output: output,
	})

	return c.logger
}

// CreateAPIClient builds a review server client for the given server URL,
// with the root resource cache enabled unless disabled.
func (c *BaseCmd) CreateAPIClient(serverURL string, disableCache bool) (*api.Client, error) {
	l := c.Logger()

	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return nil, fmt.Errorf("no review server URL configured, set server.url or use --%s", flags.FlagNameServerURL)
	}

	rootCache, err := cache.NewCache(l, cache.WithCaching(!disableCache))
	if err != nil {
		return nil, err
	}

	return api.NewClient(l, serverURL,
		api.WithHTTPClient(defaultHTTPClient()),
		api.WithRootCache(rootCache),
	)
}

// DetectSCMClient probes the working directory for a supported checkout,
// trying Subversion before Bazaar.
func (c *BaseCmd) DetectSCMClient(ctx context.Context, workingDir string, svnOpts []svn.Option, bzrOpts []bzr.Option) (scm.Client, error) {
	l := c.Logger()
	runner := execx.NewCommandRunner(l, workingDir)

	svnOpts = append([]svn.Option{svn.WithWorkingDir(workingDir)}, svnOpts...)
	bzrOpts = append([]bzr.Option{bzr.WithWorkingDir(workingDir)}, bzrOpts...)

	return scm.Detect(ctx,
		svn.Detector(l, runner, svnOpts...),
		bzr.Detector(l, runner, bzrOpts...),
	)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
