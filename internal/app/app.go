// Package app wires configuration into the anchoring components shared by
// the CLI and the MCP server.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/ar-anchor-mcp/internal/anchor"
	"github.com/ironsheep/ar-anchor-mcp/internal/arsim"
	"github.com/ironsheep/ar-anchor-mcp/internal/config"
	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/imaging"
	"github.com/ironsheep/ar-anchor-mcp/internal/ocr"
	"github.com/ironsheep/ar-anchor-mcp/internal/render"
	"github.com/ironsheep/ar-anchor-mcp/internal/session"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

// Components are built once at startup. Construction fails on configuration
// errors (missing model or asset), so nothing downstream retries them.
type Components struct {
	Config   *config.Config
	Detector detection.Detector
	Asset    *anchor.Asset
	Locator  *world.Locator
	Frames   *imaging.ImageCache
	Log      *logrus.Entry
}

// Build constructs the components for cfg. assets may be shared between
// builds; nil creates a private cache.
func Build(cfg *config.Config, assets *anchor.AssetCache, log *logrus.Entry) (*Components, error) {
	if assets == nil {
		assets = anchor.NewAssetCache()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	det, err := NewDetector(cfg.Detection)
	if err != nil {
		return nil, err
	}
	asset, err := assets.Load(cfg.Asset)
	if err != nil {
		return nil, err
	}
	loc, err := NewLocator(cfg.Raycast)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"detector": cfg.Detection.Backend,
		"asset":    asset.ID,
		"target":   cfg.Target,
	}).Debug("Components ready")
	return &Components{
		Config:   cfg,
		Detector: det,
		Asset:    asset,
		Locator:  loc,
		Frames:   imaging.NewImageCache(),
		Log:      log,
	}, nil
}

// NewDetector returns the configured detector backend.
func NewDetector(cfg config.DetectionConfig) (detection.Detector, error) {
	switch cfg.Backend {
	case config.DetectorShape, "":
		m, err := detection.LoadModel(cfg.Model)
		if err != nil {
			return nil, err
		}
		return detection.NewShapeDetector(m), nil
	case config.DetectorRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("%w: remote detector needs a url", detection.ErrModelLoad)
		}
		return detection.NewRemoteDetector(cfg.RemoteURL, cfg.Timeout), nil
	case config.DetectorOCR:
		return ocr.NewLabelDetector(cfg.Language, cfg.MinConfidence)
	}
	return nil, fmt.Errorf("%w: unknown detector backend %q", detection.ErrModelLoad, cfg.Backend)
}

// NewLocator returns a locator for the configured targets and alignment.
func NewLocator(cfg config.RaycastConfig) (*world.Locator, error) {
	align, err := world.ParseAlignment(cfg.Alignment)
	if err != nil {
		return nil, err
	}
	var targets []world.RaycastTarget
	for _, name := range cfg.Targets {
		t, err := world.ParseRaycastTarget(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return world.NewLocator(align, targets...), nil
}

// NewPlacer returns a placer for the components' asset.
func (c *Components) NewPlacer() (*anchor.Placer, error) {
	p, err := anchor.NewPlacer(c.Asset)
	if err != nil {
		return nil, err
	}
	p.MaxScale = c.Config.Placement.MaxScale
	p.DropHeight = c.Config.Placement.DropHeight
	p.DefaultFootprint = c.Config.Placement.DefaultFootprint
	return p, nil
}

// NewSession creates an anchoring session over src. Zero-valued fields in
// opts are filled from the configuration.
func (c *Components) NewSession(src world.FrameSource, opts session.Options) (*session.Session, error) {
	placer, err := c.NewPlacer()
	if err != nil {
		return nil, err
	}
	if opts.TargetLabel == "" {
		opts.TargetLabel = c.Config.Target
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = c.Config.Retry.Interval
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = c.Config.Retry.MaxAttempts
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.Config.Retry.Timeout
	}
	return session.New(session.Deps{
		Source:   src,
		Locator:  c.Locator,
		Placer:   placer,
		Detector: c.Detector,
		Logger:   c.Log,
	}, opts)
}

// Close releases detector resources such as the tesseract client.
func (c *Components) Close() error {
	if closer, ok := c.Detector.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// OpenScene opens a simulated AR session, decoding frames through the
// shared frame cache.
func (c *Components) OpenScene(path string) (*arsim.Session, error) {
	return arsim.Open(path, c.Frames)
}

// PlaceOnce runs one anchoring flow against a scene file to completion and
// returns its result together with the scene it placed into.
func (c *Components) PlaceOnce(ctx context.Context, scenePath string, opts session.Options) (session.Result, *anchor.Scene, error) {
	sim, err := c.OpenScene(scenePath)
	if err != nil {
		return session.Result{}, nil, err
	}
	s, err := c.NewSession(sim, opts)
	if err != nil {
		return session.Result{}, nil, err
	}

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()
	loop := render.NewLoop()
	go loop.Run(loopCtx)

	scene := anchor.NewScene()
	if err := s.Start(ctx, session.Surface{Bounds: sim.Viewport(), Scene: scene, Render: loop}); err != nil {
		return session.Result{}, nil, err
	}
	res, err := s.Wait(ctx)
	if err != nil {
		s.Cancel()
		<-s.Done()
		res = s.Result()
	}
	return res, scene, err
}
