// Copyright 2024 RVFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rvfs/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags and the settings they resolve to
var (
	configPath   string
	logLevelFlag string

	settings *config.Settings
	logFile  *os.File
)

func init() {
	// Default logging to discard until a level is configured
	log.SetOutput(io.Discard)
}

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "rvfs",
	Short: "Branching version timeline for files under a versioned mount",
	Long: `Inspect the version timeline of files tracked by rvfs.

Every save of a tracked file becomes a version record; restoring an old
version and editing it starts a branch. rvfs rebuilds the branching tree from
the record ledger, lays it out on a time axis, and maintains the reference
counts of the content objects the versions point at.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		s, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if logLevelFlag != "" {
			s.LogLevel = logLevelFlag
		}
		settings = s
		return setupLogging(s, cmd.ErrOrStderr())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			err := logFile.Close()
			logFile = nil
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("rvfs version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default "+config.SettingsPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, off")
}

// setupLogging routes logrus output according to the settings.
func setupLogging(s *config.Settings, stderr io.Writer) error {
	if !s.LoggingEnabled() {
		log.SetOutput(io.Discard)
		return nil
	}

	var out io.Writer = stderr
	if s.LogFile != "" {
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	}
	log.SetOutput(out)

	switch s.NormalizedLogLevel() {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// command's context, which stops any collaborator it is waiting on.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
