package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/genmedia-relay/internal/studio"
)

func newImageCmd(a *app) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "image [PROMPT]",
		Short: "Generate an image from a text prompt",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				prompt = strings.Join(args, " ")
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("%w: a prompt is required", studio.ErrBadRequest)
			}

			ctx := cmd.Context()
			uris, err := a.deps.Engine.GenerateImage(ctx, prompt)
			if err != nil {
				return err
			}

			for _, uri := range uris {
				location, err := saveDataURI(ctx, a.deps.Storage, "image", uri)
				if err != nil {
					return fmt.Errorf("save image: %w", err)
				}
				a.logger.Info("image saved", slog.String("location", location))
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), location); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "text prompt")
	return cmd
}
