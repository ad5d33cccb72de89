package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/digest-cli/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report missing or placeholder credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printCredentials(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// printCredentials lists every credential and fails if any is unusable.
func printCredentials(w io.Writer, c *config.Config) error {
	var missing []string
	for _, cred := range c.Credentials() {
		status := "[+]"
		switch {
		case !cred.Set:
			status = "[-] missing"
		case cred.Placeholder:
			status = "[-] placeholder"
		}
		if !cred.OK() {
			missing = append(missing, cred.Key)
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", status, cred.Key); err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		return eris.Errorf("missing or placeholder credentials: %s", strings.Join(missing, ", "))
	}
	_, err := fmt.Fprintln(w, "all credentials set")
	return err
}
