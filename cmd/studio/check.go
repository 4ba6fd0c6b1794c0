package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/genmedia-relay/internal/relay"
)

var errNotReady = errors.New("relay is not ready")

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether the relay can serve requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine := a.deps.Engine
			if !engine.CheckReadiness(cmd.Context()) {
				if engine.Mode() == relay.ModeClient && !engine.HasCredential() {
					return fmt.Errorf("%w: no API key set, run `studio key set`", errNotReady)
				}
				return errNotReady
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ready (%s mode)\n", engine.Mode())
			return err
		},
	}
}
