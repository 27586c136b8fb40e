// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes canvasd tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dandytbermillo/canvasd/internal/canvasservice"
	"github.com/dandytbermillo/canvasd/internal/geom"
)

// Server wraps the MCP server with canvasd tools.
type Server struct {
	mcp *server.MCPServer
	svc *canvasservice.Service
}

// New creates a new MCP server with all canvasd tools registered.
func New(svc *canvasservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"canvasd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("canvas_state",
		mcp.WithDescription("Get the hydrated canvas state for a note: camera, panel items, "+
			"and derived connections. Opening a note for the first time hydrates it."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id (no ':' characters)")),
	), s.canvasState)

	s.mcp.AddTool(mcp.NewTool("list_panels",
		mcp.WithDescription("List the positioned items on a note's canvas."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
	), s.listPanels)

	s.mcp.AddTool(mcp.NewTool("add_component",
		mcp.WithDescription("Place a component (non-panel canvas entity such as a calculator "+
			"or timer) on a note's canvas. Coordinates are world space; omit them to place "+
			"the component at the viewport center."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Component type (e.g. calculator, timer)")),
		mcp.WithNumber("x", mcp.Description("World-space X position")),
		mcp.WithNumber("y", mcp.Description("World-space Y position")),
	), s.addComponent)

	s.mcp.AddTool(mcp.NewTool("center_panel",
		mcp.WithDescription("Recenter the camera on one panel."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("panel_id", mcp.Required(), mcp.Description("Panel id (e.g. main)")),
	), s.centerPanel)

	s.mcp.AddTool(mcp.NewTool("pan_canvas",
		mcp.WithDescription("Pan the camera by a delta. Deltas within one frame interval "+
			"coalesce into a single downstream update."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithNumber("dx", mcp.Required(), mcp.Description("Horizontal delta")),
		mcp.WithNumber("dy", mcp.Required(), mcp.Description("Vertical delta")),
	), s.panCanvas)

	s.mcp.AddTool(mcp.NewTool("zoom_canvas",
		mcp.WithDescription("Zoom the camera one step in or out, clamped to the configured range."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("direction", mcp.Required(), mcp.Description("\"in\" or \"out\"")),
	), s.zoomCanvas)

	s.mcp.AddTool(mcp.NewTool("toggle_connections",
		mcp.WithDescription("Flip the visibility of the connection lines between panels."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
	), s.toggleConnections)

	s.mcp.AddTool(mcp.NewTool("get_canvas_contract",
		mcp.WithDescription("Returns the canvasd coordinate and identity contract. "+
			"Call this before placing or moving canvas entities to get the coordinate "+
			"spaces and key format right."),
	), s.getCanvasContract)

	// Resource: canvas coordinate contract.
	s.mcp.AddResource(
		mcp.NewResource("canvasd://canvas-contract", "Canvas Coordinate Contract",
			mcp.WithResourceDescription("Coordinate spaces, identity keys, and camera semantics for canvasd."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCanvasContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// floatArg reads an optional numeric argument; JSON numbers arrive as float64.
func floatArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key].(float64)
	return v, ok
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) canvasState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.State(ctx, noteID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"noteId":      v.NoteID,
		"viewport":    v.Viewport,
		"items":       v.Items,
		"connections": v.Connections,
		"savedAt":     v.SavedAt,
		"ready":       v.Ready,
	}), nil
}

func (s *Server) listPanels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.State(ctx, noteID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v.Items), nil
}

func (s *Server) addComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	componentType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := req.GetArguments()
	var pos *geom.Point
	x, okX := floatArg(args, "x")
	y, okY := floatArg(args, "y")
	if okX != okY {
		return mcp.NewToolResultError("x and y must be given together"), nil
	}
	if okX {
		pos = &geom.Point{X: x, Y: y}
	}

	item, err := s.svc.AddComponent(ctx, noteID, componentType, pos)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(item), nil
}

func (s *Server) centerPanel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	panelID, err := req.RequireString("panel_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cam, err := s.svc.CenterPanel(ctx, noteID, panelID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cam), nil
}

func (s *Server) panCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	dx, okX := floatArg(args, "dx")
	dy, okY := floatArg(args, "dy")
	if !okX || !okY {
		return mcp.NewToolResultError("dx and dy are required numbers"), nil
	}
	cam, err := s.svc.PanBy(ctx, noteID, dx, dy)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cam), nil
}

func (s *Server) zoomCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction, err := req.RequireString("direction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var cam geom.Camera
	switch direction {
	case "in":
		cam, err = s.svc.ZoomIn(ctx, noteID)
	case "out":
		cam, err = s.svc.ZoomOut(ctx, noteID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("direction must be \"in\" or \"out\", got %q", direction)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cam), nil
}

func (s *Server) toggleConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cam, err := s.svc.ToggleConnections(ctx, noteID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cam), nil
}

func (s *Server) getCanvasContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CanvasContract), nil
}

func (s *Server) readCanvasContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "canvasd://canvas-contract",
			MIMEType: "text/markdown",
			Text:     CanvasContract,
		},
	}, nil
}
