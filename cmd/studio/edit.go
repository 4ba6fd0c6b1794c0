package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/maauso/genmedia-relay/internal/storage"
	"github.com/maauso/genmedia-relay/internal/studio"
)

// imageEditor is the part of the engine the edit command drives.
type imageEditor interface {
	EditImage(ctx context.Context, image []byte, mimeType, prompt string) ([]studio.Part, error)
}

// editInput is one image to edit.
type editInput struct {
	Path     string
	Data     []byte
	MIMEType string
}

// editAll edits every input with prompt, running up to concurrency requests at
// once and starting no faster than limiter allows. Results keep input order.
// The first failure cancels the remaining edits.
func editAll(ctx context.Context, editor imageEditor, inputs []editInput, prompt string, concurrency int, limiter *rate.Limiter) ([][]studio.Part, error) {
	results := make([][]studio.Part, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, in := range inputs {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			parts, err := editor.EditImage(ctx, in.Data, in.MIMEType, prompt)
			if err != nil {
				return fmt.Errorf("edit %s: %w", in.Path, err)
			}
			results[i] = parts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// writeEditResults prints text parts and stores image parts for each input.
func writeEditResults(ctx context.Context, out io.Writer, store storage.Storage, inputs []editInput, results [][]studio.Part) error {
	for i, parts := range results {
		if _, err := fmt.Fprintf(out, "== %s\n", inputs[i].Path); err != nil {
			return err
		}
		for _, p := range parts {
			line := p.Value
			if p.Kind == studio.PartImage {
				location, err := saveDataURI(ctx, store, baseName(inputs[i].Path)+"-edit", p.Value)
				if err != nil {
					return fmt.Errorf("save edited image: %w", err)
				}
				line = "[image] " + location
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func newEditCmd(a *app) *cobra.Command {
	var (
		prompt      string
		concurrency int
		rps         float64
	)

	cmd := &cobra.Command{
		Use:   "edit IMAGE...",
		Short: "Edit one or more images with a text instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("%w: --prompt is required", studio.ErrBadRequest)
			}

			inputs := make([]editInput, 0, len(args))
			for _, path := range args {
				data, mimeType, err := readImage(path)
				if err != nil {
					return fmt.Errorf("%w: %v", studio.ErrBadRequest, err)
				}
				inputs = append(inputs, editInput{Path: path, Data: data, MIMEType: mimeType})
			}

			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.EditConcurrency
			}
			var limiter *rate.Limiter
			if rps > 0 {
				limiter = rate.NewLimiter(rate.Limit(rps), 1)
			}

			a.logger.Info("editing images",
				slog.Int("count", len(inputs)),
				slog.Int("concurrency", concurrency),
			)

			ctx := cmd.Context()
			results, err := editAll(ctx, a.deps.Engine, inputs, prompt, concurrency, limiter)
			if err != nil {
				return err
			}
			return writeEditResults(ctx, cmd.OutOrStdout(), a.deps.Storage, inputs, results)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "edit instruction")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "maximum edits in flight (overrides EDIT_CONCURRENCY)")
	cmd.Flags().Float64Var(&rps, "rps", 1, "maximum edit submissions per second, 0 for unlimited")
	return cmd
}
