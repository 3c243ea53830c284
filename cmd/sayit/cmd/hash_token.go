package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sayit/api/internal/auth"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Print the bcrypt hash of an editor token",
	Long: `Print the bcrypt hash of an editor token for auth.token_hashes.

The token is read from stdin when no argument is given, which keeps it out of
shell history.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{"config": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		} else {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if scanner.Scan() {
				token = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read token: %w", err)
			}
		}
		hash, err := auth.HashToken(strings.TrimSpace(token))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
