package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/session"
)

type placeOutput struct {
	Session   string       `json:"session"`
	State     string       `json:"state"`
	Attempts  int          `json:"attempts"`
	AnchorID  string       `json:"anchor_id,omitempty"`
	Position  *[3]float64  `json:"position,omitempty"`
	Scale     float64      `json:"scale,omitempty"`
	Fallback  bool         `json:"fallback,omitempty"`
	Candidate *geom.Point2 `json:"candidate,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func newPlaceCmd(flags *globalFlags) *cobra.Command {
	var (
		scenePath   string
		target      string
		maxAttempts int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Run one anchoring flow against a scene file",
		Example: `  # Place the configured asset on the first bowl found
  anchor-mcp place --scene scenes/kitchen.yaml

  # Look for a pan, giving up after 10 attempts
  anchor-mcp place --scene scenes/kitchen.yaml --target pan --max-attempts 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := setup(flags, target)
			if err != nil {
				return err
			}
			defer c.Close()

			res, _, runErr := c.PlaceOnce(cmd.Context(), scenePath, session.Options{
				MaxAttempts: maxAttempts,
				Timeout:     timeout,
			})
			if runErr != nil && res.ID == "" {
				return runErr
			}

			out := placeOutput{Session: res.ID, State: res.State.String(), Attempts: res.Attempts}
			if res.Candidate != nil {
				out.Candidate = &res.Candidate.Point
			}
			if p := res.Placement; p != nil {
				pos := geom.Triple(p.Position)
				out.AnchorID, out.Position, out.Scale, out.Fallback = p.AnchorID, &pos, p.Scale, p.Fallback
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			if res.State != session.Placed {
				return fmt.Errorf("anchoring ended in state %s", res.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&scenePath, "scene", "s", "", "scene YAML file")
	cmd.Flags().StringVarP(&target, "target", "t", "", "label to search for (default from config)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "give up after this many attempts (0 = config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 = config)")
	_ = cmd.MarkFlagRequired("scene")

	return cmd
}
