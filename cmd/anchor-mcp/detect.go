package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/imaging"
)

func newDetectCmd(flags *globalFlags) *cobra.Command {
	var (
		imagePath string
		target    string
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run the configured detector on an image and print the detections",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := setup(flags, target)
			if err != nil {
				return err
			}
			defer c.Close()
			img, err := imaging.Decode(imagePath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if t := c.Config.Detection.Timeout; t > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}
			dets, err := c.Detector.Detect(ctx, img)
			if err != nil {
				return err
			}

			dims := imaging.DimensionsOf(img)
			view := geom.Size{Width: float64(dims.Width), Height: float64(dims.Height)}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"dimensions": dims,
				"detections": dets,
				"candidate":  detection.ChooseCandidate(dets, c.Config.Target, view),
			})
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "image file")
	cmd.Flags().StringVarP(&target, "target", "t", "", "label to select (default from config)")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}
