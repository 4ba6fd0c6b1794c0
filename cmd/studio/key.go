package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the API key used in client mode",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [KEY]",
		Short: "Validate and store an API key (reads stdin when KEY is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key from stdin: %w", err)
				}
				key = line
			}

			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("key is empty; use `studio key clear` to remove the stored key")
			}

			if _, err := a.deps.Engine.SetCredential(cmd.Context(), key); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "API key validated and saved")
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.deps.Engine.SetCredential(cmd.Context(), ""); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "API key cleared")
			return err
		},
	})

	return cmd
}
