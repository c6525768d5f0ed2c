// =============================================================================
// Haushaltsdaten - Version Command
// =============================================================================
//
// This file defines the 'version' command, which displays the application
// version and build information.
//
// COMMAND USAGE:
//   haushalt version
//
// OUTPUT:
//   Haushaltsdaten
//   Version:    1.0.0
//   Build Date: 2025-01-01
//   Go Version: go1.22.0
//
// This is the version of the tool, not of a published data set. The data
// set version is the tag named in <output>/version.json.
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// =============================================================================
// VERSION INFORMATION
// =============================================================================
// These variables are set at build time using ldflags.
// Example build command:
//   go build -ldflags "-X 'github.com/tifa365/haushaltsdaten/cmd.Version=1.0.0' -X 'github.com/tifa365/haushaltsdaten/cmd.BuildDate=2025-01-01'"

// Version is the application version.
var Version = "dev"

// BuildDate is the date the application was built.
var BuildDate = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long:  `Display the application version, build date, and Go runtime version.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(titleStyle.Render("Haushaltsdaten"))
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Build Date: %s\n", BuildDate)
		fmt.Printf("Go Version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
