// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes card editing tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/growthlab/internal/cardservice"
)

const contractURI = "growthlab://card-format"

// Server wraps the MCP server with card tools.
type Server struct {
	mcp *server.MCPServer
	svc *cardservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *cardservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"growthlab",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the names of all session documents."),
	), s.listSessions)

	s.mcp.AddTool(mcp.NewTool("read_session",
		mcp.WithDescription("Read a session document split into its cards. Cards are addressed by index."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session name (e.g. session-01)")),
	), s.readSession)

	s.mcp.AddTool(mcp.NewTool("update_card",
		mcp.WithDescription("Replace the content of one card. Images the old card used and the new one "+
			"does not are deleted. Read the contract first via get_card_contract."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session name")),
		mcp.WithNumber("card_index", mcp.Required(), mcp.Description("Zero-based card index")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New card content in Markdown")),
		mcp.WithArray("uploaded_images", mcp.Description("New (non-duplicate) paths uploaded during this edit; unused ones are discarded"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.updateCard)

	s.mcp.AddTool(mcp.NewTool("delete_card",
		mcp.WithDescription("Delete one card. Fails if it is the only card. Later cards shift down by one."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session name")),
		mcp.WithNumber("card_index", mcp.Required(), mcp.Description("Zero-based card index")),
		mcp.WithArray("uploaded_images", mcp.Description("New (non-duplicate) paths uploaded while editing this card"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.deleteCard)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Upload an image from a base64 data URI or an http(s) URL. It is converted to "+
			"webp and the returned markdownImage can be pasted into a card."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:image/...;base64,... URI or http(s) URL")),
		mcp.WithString("session", mcp.Description("Session the image belongs to (default session-01)")),
		mcp.WithString("filename", mcp.Description("Optional source filename; its extension selects the format")),
	), s.uploadImage)

	s.mcp.AddTool(mcp.NewTool("cleanup_images",
		mcp.WithDescription("Delete uploaded images that an abandoned edit never saved."),
		mcp.WithArray("images", mcp.Required(), mcp.Description("Paths returned by upload_image, excluding duplicate results"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.cleanupImages)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the session card format contract. "+
			"Call this before editing cards to ensure correct structure."),
	), s.getCardContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Card Format Contract",
			mcp.WithResourceDescription("Session document and image embedding rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) listSessions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.svc.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(names)
}

func (s *Server) readSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.svc.GetSession(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sess)
}

func (s *Server) updateCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, err := intArg(req, "card_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	uploaded, err := stringsArg(req, "uploaded_images", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.UpdateCard(ctx, cardservice.UpdateRequest{
		Session:        name,
		CardIndex:      idx,
		Content:        content,
		UploadedImages: uploaded,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) deleteCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, err := intArg(req, "card_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	uploaded, err := stringsArg(req, "uploaded_images", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.DeleteCard(ctx, cardservice.DeleteRequest{Session: name, CardIndex: idx, UploadedImages: uploaded})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) cleanupImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	images, err := stringsArg(req, "images", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n := s.svc.Cleanup(ctx, images)
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", n)), nil
}

func (s *Server) getCardContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// intArg reads a whole-number argument. JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string) (int, error) {
	v, ok := req.GetArguments()[key]
	if !ok {
		return 0, fmt.Errorf("required argument %q not found", key)
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}

func stringsArg(req mcp.CallToolRequest, key string, required bool) ([]string, error) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		if required {
			return nil, fmt.Errorf("required argument %q not found", key)
		}
		return nil, nil
	}
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a list of strings", key)
	}
}
