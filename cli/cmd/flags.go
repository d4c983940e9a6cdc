// Package cmd provides the commands of the urlcustomdiscs binary.
package cmd

import "github.com/urfave/cli/v2"

// ConfigEnvVar names the config file when --config is not given.
const ConfigEnvVar = "URLCUSTOMDISCS_CONFIG"

var (
	// ConfigFlag points at the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML config file (defaults apply when omitted)",
		EnvVars: []string{ConfigEnvVar},
	}

	// DataDirFlag overrides server.data_dir.
	DataDirFlag = &cli.StringFlag{
		Name:  "data-dir",
		Usage: "Override server.data_dir",
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats, quota only)",
	}
)

// ReadOnlyFlags returns the shared flags for commands that print a result.
// --tui is included everywhere so unsupported commands give an explicit
// error instead of "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, DataDirFlag, FormatFlag, TUIFlag}
}
