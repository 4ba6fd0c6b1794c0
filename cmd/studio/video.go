package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/genmedia-relay/internal/studio"
)

const defaultVideoModel = "veo-3.0-generate-001"

func newVideoCmd(a *app) *cobra.Command {
	var (
		prompt    string
		model     string
		imagePath string
		download  bool
	)

	cmd := &cobra.Command{
		Use:   "video [PROMPT]",
		Short: "Generate a video and wait for it to finish",
		Long: `Submits a video job and polls it until the service reports completion.
Interrupting the command stops polling but does not cancel the remote job.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				prompt = strings.Join(args, " ")
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("%w: a prompt is required", studio.ErrBadRequest)
			}

			var (
				image    []byte
				mimeType string
			)
			if imagePath != "" {
				var err error
				if image, mimeType, err = readImage(imagePath); err != nil {
					return fmt.Errorf("%w: %v", studio.ErrBadRequest, err)
				}
			}

			ctx := cmd.Context()
			started := time.Now()
			uri, err := a.deps.Engine.GenerateVideo(ctx, prompt, model, image, mimeType)
			if err != nil {
				return err
			}
			a.logger.Info("video ready", slog.Duration("elapsed", time.Since(started)))

			if !download {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), uri)
				return err
			}

			data, err := a.deps.Engine.Download(ctx, uri)
			if err != nil {
				return err
			}
			location, err := a.deps.Storage.Save(ctx, outputName("video", "video/mp4"), bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("save video: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), location)
			return err
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "text prompt")
	cmd.Flags().StringVarP(&model, "model", "m", defaultVideoModel, "video model")
	cmd.Flags().StringVar(&imagePath, "image", "", "optional seed image")
	cmd.Flags().BoolVarP(&download, "download", "d", false, "download the finished video into the output directory")
	return cmd
}
