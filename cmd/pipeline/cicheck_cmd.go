package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albapepper/matchpipe/internal/cicheck"
)

func ciCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ci-check",
		Short: "Static checks runnable in CI, independent of a live database",
	}
	cmd.AddCommand(ciCheckWriteAuthCmd())
	return cmd
}

func ciCheckWriteAuthCmd() *cobra.Command {
	var failOnViolations bool
	var format string
	var dirs, allowlist []string

	cmd := &cobra.Command{
		Use:   "write-auth",
		Short: "Scan source directories for protected-table writes missing an authorization call (§4.H.1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(dirs) == 0 {
				dirs = []string{"internal", "cmd"}
			}

			violations, err := cicheck.Scan(cicheck.Options{
				Dirs:      dirs,
				Allowlist: allowlist,
				Extension: ".go",
			})
			if err != nil {
				return fmt.Errorf("scan write-auth: %w", err)
			}

			switch format {
			case "json":
				out, err := cicheck.FormatJSON(violations)
				if err != nil {
					return fmt.Errorf("format json: %w", err)
				}
				fmt.Println(out)
			default:
				fmt.Print(cicheck.FormatText(violations))
			}

			if failOnViolations && len(violations) > 0 {
				return fmt.Errorf("%d unauthorized write-auth violation(s) found", len(violations))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnViolations, "fail-on-violations", false, "exit non-zero if any violation is found")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	cmd.Flags().StringSliceVar(&dirs, "dirs", nil, "directories to scan (default: internal, cmd)")
	cmd.Flags().StringSliceVar(&allowlist, "allowlist", nil, "file paths exempt from the check")

	return cmd
}
