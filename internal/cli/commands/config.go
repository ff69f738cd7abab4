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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rvfs/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize rvfs settings",
	Long: `Show the effective settings or create the default settings file.

Settings live in settings.yaml under $RVFS_CONFIG_DIR, or ~/.rvfs when unset.
Keys missing from the file fall back to the built-in defaults.

Examples:
  rvfs config show
  rvfs config init`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config directory and default settings file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := settings.Marshal()
	if err != nil {
		return fmt.Errorf("failed to render settings: %w", err)
	}
	path := configPath
	if path == "" {
		path = config.SettingsPath()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.SettingsPath()
	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	}
	if err := config.InitConfigDir(); err != nil {
		return err
	}
	if existed {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already exists (not modified)\n", path)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	}
	return nil
}
