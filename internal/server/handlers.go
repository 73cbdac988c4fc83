package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/ar-anchor-mcp/internal/anchor"
	"github.com/ironsheep/ar-anchor-mcp/internal/app"
	"github.com/ironsheep/ar-anchor-mcp/internal/detection"
	"github.com/ironsheep/ar-anchor-mcp/internal/geom"
	"github.com/ironsheep/ar-anchor-mcp/internal/imaging"
	"github.com/ironsheep/ar-anchor-mcp/internal/session"
	"github.com/ironsheep/ar-anchor-mcp/internal/world"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "anchor_start", "raycast").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.WithFields(logrus.Fields{"tool": params.Name}).WithError(err).Warn("Tool failed")
		return errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return resultResponse(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": mustMarshalJSON(result)},
		},
	})
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Anchoring Sessions
	case "anchor_start":
		return s.handleAnchorStart(args)
	case "anchor_status":
		return s.handleAnchorStatus(args)
	case "anchor_cancel":
		return s.handleAnchorCancel(args)
	case "anchor_list":
		return s.handleAnchorList(args)
	case "scene_anchors":
		return s.handleSceneAnchors(args)

	// Detection
	case "detect_frame":
		return s.handleDetectFrame(args)
	case "detection_overlay":
		return s.handleDetectionOverlay(args)
	case "detection_crop":
		return s.handleDetectionCrop(args)

	// World Location
	case "raycast":
		return s.handleRaycast(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Result Views ===

type placementView struct {
	AnchorID       string      `json:"anchor_id"`
	AssetID        string      `json:"asset_id"`
	Position       [3]float64  `json:"position"`
	EntityPosition [3]float64  `json:"entity_position"`
	Scale          float64     `json:"scale"`
	ComputedScale  float64     `json:"computed_scale"`
	FootprintSide  float64     `json:"footprint_side"`
	Fallback       bool        `json:"fallback"`
	Surface        string      `json:"surface"`
	Matrix         [16]float64 `json:"matrix"`
}

func newPlacementView(p *anchor.Placement) *placementView {
	if p == nil {
		return nil
	}
	return &placementView{
		AnchorID:       p.AnchorID,
		AssetID:        p.AssetID,
		Position:       geom.Triple(p.Position),
		EntityPosition: geom.Triple(p.Position.Add(p.Drop)),
		Scale:          p.Scale,
		ComputedScale:  p.ComputedScale,
		FootprintSide:  p.FootprintSide,
		Fallback:       p.Fallback,
		Surface:        p.Surface.Target.String(),
		Matrix:         p.Anchor.Matrix(),
	}
}

type statusView struct {
	SessionID string               `json:"session_id"`
	State     string               `json:"state"`
	Target    string               `json:"target"`
	Attempts  int                  `json:"attempts"`
	Candidate *detection.Candidate `json:"candidate,omitempty"`
	Placement *placementView       `json:"placement,omitempty"`
	Error     string               `json:"error,omitempty"`
}

func newStatusView(r session.Result) statusView {
	v := statusView{
		SessionID: r.ID,
		State:     r.State.String(),
		Target:    r.Target,
		Attempts:  r.Attempts,
		Candidate: r.Candidate,
		Placement: newPlacementView(r.Placement),
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

type anchorView struct {
	ID             string      `json:"id"`
	AssetID        string      `json:"asset_id"`
	Source         string      `json:"source,omitempty"`
	Position       [3]float64  `json:"position"`
	EntityPosition [3]float64  `json:"entity_position"`
	Scale          float64     `json:"scale"`
	Matrix         [16]float64 `json:"matrix"`
	CreatedAt      time.Time   `json:"created_at"`
}

// === Anchoring Session Handlers ===

type anchorStartArgs struct {
	Scene       string `json:"scene"`
	Target      string `json:"target"`
	MaxAttempts int    `json:"max_attempts"`
	TimeoutMS   int    `json:"timeout_ms"`
}

func (s *Server) handleAnchorStart(args json.RawMessage) (interface{}, error) {
	var a anchorStartArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scene == "" {
		return nil, errors.New("scene is required")
	}
	if a.MaxAttempts < 0 || a.TimeoutMS < 0 {
		return nil, errors.New("max_attempts and timeout_ms must not be negative")
	}

	sim, err := s.app.OpenScene(a.Scene)
	if err != nil {
		return nil, err
	}
	sess, err := s.app.NewSession(sim, session.Options{
		TargetLabel: a.Target,
		MaxAttempts: a.MaxAttempts,
		Timeout:     time.Duration(a.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pruneFinishedLocked()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	surface := session.Surface{Bounds: sim.Viewport(), Scene: s.scene, Render: s.loop}
	if err := sess.Start(s.ctx, surface); err != nil {
		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
		return nil, err
	}
	return newStatusView(sess.Result()), nil
}

// pruneFinishedLocked drops the oldest finished sessions beyond
// keepFinished. s.mu must be held.
func (s *Server) pruneFinishedLocked() {
	finished := make([]string, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if sess.State().Terminal() {
			finished = append(finished, id)
		}
	}
	if len(finished) <= s.keepFinished {
		return
	}
	// ULIDs sort by creation time.
	sort.Strings(finished)
	for _, id := range finished[:len(finished)-s.keepFinished] {
		delete(s.sessions, id)
	}
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
	WaitMS    int    `json:"wait_ms"`
}

func (s *Server) lookupSession(args json.RawMessage) (*session.Session, sessionArgs, error) {
	var a sessionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, a, err
	}
	s.mu.Lock()
	sess, ok := s.sessions[a.SessionID]
	s.mu.Unlock()
	if !ok {
		return nil, a, fmt.Errorf("unknown session: %q", a.SessionID)
	}
	return sess, a, nil
}

func (s *Server) handleAnchorStatus(args json.RawMessage) (interface{}, error) {
	sess, a, err := s.lookupSession(args)
	if err != nil {
		return nil, err
	}
	if a.WaitMS > 0 {
		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(a.WaitMS)*time.Millisecond)
		defer cancel()
		// The session's own error is reported in the view.
		sess.Wait(ctx)
	}
	return newStatusView(sess.Result()), nil
}

func (s *Server) handleAnchorCancel(args json.RawMessage) (interface{}, error) {
	sess, _, err := s.lookupSession(args)
	if err != nil {
		return nil, err
	}
	sess.Cancel()
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	sess.Wait(ctx)
	return newStatusView(sess.Result()), nil
}

func (s *Server) handleAnchorList(args json.RawMessage) (interface{}, error) {
	s.mu.Lock()
	views := make([]statusView, 0, len(s.sessions))
	for _, sess := range s.sessions {
		views = append(views, newStatusView(sess.Result()))
	}
	s.mu.Unlock()

	// ULIDs sort by creation time.
	sort.Slice(views, func(i, j int) bool { return views[i].SessionID < views[j].SessionID })
	return map[string]interface{}{
		"count":    len(views),
		"sessions": views,
	}, nil
}

func (s *Server) handleSceneAnchors(args json.RawMessage) (interface{}, error) {
	anchors := s.scene.Anchors()
	views := make([]anchorView, 0, len(anchors))
	for _, a := range anchors {
		views = append(views, anchorView{
			ID:             a.ID,
			AssetID:        a.Entity.AssetID,
			Source:         a.Entity.Source,
			Position:       geom.Triple(a.Transform.Translation),
			EntityPosition: geom.Triple(a.WorldPosition()),
			Scale:          a.Entity.Scale,
			Matrix:         a.Transform.Matrix(),
			CreatedAt:      a.CreatedAt,
		})
	}
	return map[string]interface{}{
		"count":   len(views),
		"anchors": views,
	}, nil
}

// === Detection Handlers ===

type detectArgs struct {
	Path       string  `json:"path"`
	Target     string  `json:"target"`
	ViewWidth  float64 `json:"view_width"`
	ViewHeight float64 `json:"view_height"`
}

type detectResult struct {
	Dimensions imaging.Dimensions    `json:"dimensions"`
	Target     string                `json:"target"`
	Detections []detection.Detection `json:"detections"`
	Candidate  detection.Candidate   `json:"candidate"`
}

// detect loads path and runs the configured detector with its timeout.
func (s *Server) detect(a detectArgs) (image.Image, *detectResult, error) {
	img, err := s.app.Frames.Load(a.Path)
	if err != nil {
		return nil, nil, err
	}

	ctx := s.ctx
	if t := s.app.Config.Detection.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	dets, err := s.app.Detector.Detect(ctx, img)
	if err != nil {
		return nil, nil, fmt.Errorf("detection failed: %w", err)
	}
	if dets == nil {
		dets = []detection.Detection{}
	}

	dims := imaging.DimensionsOf(img)
	view := geom.Size{Width: a.ViewWidth, Height: a.ViewHeight}
	if view.Empty() {
		view = geom.Size{Width: float64(dims.Width), Height: float64(dims.Height)}
	}
	target := a.Target
	if target == "" {
		target = s.app.Config.Target
	}
	return img, &detectResult{
		Dimensions: dims,
		Target:     target,
		Detections: dets,
		Candidate:  detection.ChooseCandidate(dets, target, view),
	}, nil
}

func (s *Server) handleDetectFrame(args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	_, res, err := s.detect(a)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Server) handleDetectionOverlay(args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	// The marker is drawn in image space.
	a.ViewWidth, a.ViewHeight = 0, 0
	img, res, err := s.detect(a)
	if err != nil {
		return nil, err
	}
	view := geom.Size{Width: float64(res.Dimensions.Width), Height: float64(res.Dimensions.Height)}
	marker := detection.ScreenToNormalized(res.Candidate.Point, view)
	overlay, err := imaging.Overlay(img, res.Detections, &marker)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"image":      overlay,
		"detections": res.Detections,
		"candidate":  res.Candidate,
	}, nil
}

type detectionCropArgs struct {
	Path   string  `json:"path"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

func (s *Server) handleDetectionCrop(args json.RawMessage) (interface{}, error) {
	var a detectionCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.app.Frames.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.CropDetection(img, detection.Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}, a.Scale)
}

// === World Location Handlers ===

type raycastArgs struct {
	Scene     string   `json:"scene"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Alignment string   `json:"alignment"`
	Targets   []string `json:"targets"`
}

type raycastResult struct {
	Hit       bool        `json:"hit"`
	Point     geom.Point2 `json:"point"`
	Position  *[3]float64 `json:"position,omitempty"`
	Normal    *[3]float64 `json:"normal,omitempty"`
	Alignment string      `json:"alignment,omitempty"`
	Target    string      `json:"target,omitempty"`
	Distance  float64     `json:"distance,omitempty"`
}

func (s *Server) handleRaycast(args json.RawMessage) (interface{}, error) {
	var a raycastArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scene == "" {
		return nil, errors.New("scene is required")
	}

	loc := s.app.Locator
	if a.Alignment != "" || len(a.Targets) > 0 {
		rc := s.app.Config.Raycast
		if a.Alignment != "" {
			rc.Alignment = a.Alignment
		}
		if len(a.Targets) > 0 {
			rc.Targets = a.Targets
		}
		var err error
		if loc, err = app.NewLocator(rc); err != nil {
			return nil, err
		}
	}

	sim, err := s.app.OpenScene(a.Scene)
	if err != nil {
		return nil, err
	}
	p := geom.Point2{X: a.X, Y: a.Y}
	res := raycastResult{Point: p}
	wp, ok := loc.Locate(sim, p)
	if !ok {
		return res, nil
	}
	res.Hit = true
	pos, normal := geom.Triple(wp.Position), geom.Triple(wp.Normal)
	res.Position = &pos
	if wp.Alignment != world.AlignAny || wp.Normal.Norm() > 0 {
		res.Normal = &normal
	}
	res.Alignment = wp.Alignment.String()
	res.Target = wp.Target.String()
	res.Distance = wp.Distance
	return res, nil
}
