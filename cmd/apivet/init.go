package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed templates/apivet.yaml
var suiteTemplate embed.FS

// suiteFileName is the default suite file name.
const suiteFileName = ".apivet.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new apivet suite file",
		Long: `Initialize creates a new .apivet.yaml suite file in the current directory.

The generated file includes:
- A documented example suite with login, endpoints, and expectations
- Commented examples for concurrency and database checks
- Documentation for all available options

Credentials are never written to the suite file; the template references
environment variables instead.

Examples:
  # Create .apivet.yaml in current directory
  apivet init

  # Create a suite file at a specific path
  apivet init -o mysuite.yaml

  # Force overwrite existing file
  apivet init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", suiteFileName,
		"Output file path for the suite file")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing suite file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("suite file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := suiteTemplate.ReadFile("templates/apivet.yaml")
	if err != nil {
		return fmt.Errorf("failed to read suite template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write suite file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created suite file: %s\n", outputPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Set the backend base URL and declare your endpoints")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Export APIVET_ADMIN_USER and APIVET_ADMIN_PASSWORD (or use a .env file)")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Run 'apivet probe' to verify the deployment")

	return nil
}
