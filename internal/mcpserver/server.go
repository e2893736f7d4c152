// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes capture tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/zettel/internal/apperr"
	"github.com/starford/zettel/internal/noteservice"
)

const contractURI = "zettel://capture-format"

// Server wraps the MCP server with capture tools. Every call runs as owner.
type Server struct {
	mcp   *server.MCPServer
	svc   *noteservice.Service
	owner int64
}

// New creates a new MCP server with all capture tools registered.
func New(svc *noteservice.Service, owner int64) *Server {
	s := &Server{svc: svc, owner: owner}

	s.mcp = server.NewMCPServer(
		"Zettel",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_capture",
		mcp.WithDescription("Create a capture. Reference other captures inline with [[Exact Title]]; "+
			"missing title and tags are generated in the background. "+
			"Read the contract first via get_capture_contract or the "+contractURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Capture text")),
		mcp.WithString("title", mcp.Description("Optional title; defaults to the first line of content")),
		mcp.WithArray("tags", mcp.Description("Optional tags"), mcp.Items(map[string]any{"type": "string"})),
	), s.createCapture)

	s.mcp.AddTool(mcp.NewTool("read_capture",
		mcp.WithDescription("Read a capture with its tags, checksum and links in both directions."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Capture id")),
	), s.readCapture)

	s.mcp.AddTool(mcp.NewTool("update_capture",
		mcp.WithDescription("Update a capture. Omitted fields are left unchanged. "+
			"Pass the checksum from read_capture as if_match to avoid overwriting concurrent edits."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Capture id")),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithString("title", mcp.Description("New title; empty re-derives it from content")),
		mcp.WithArray("tags", mcp.Description("Replacement tag set"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("if_match", mcp.Description("Checksum the stored content must still have")),
	), s.updateCapture)

	s.mcp.AddTool(mcp.NewTool("link_captures",
		mcp.WithDescription("Link source to target by appending a [[Target Title]] reference to the source."),
		mcp.WithNumber("source_id", mcp.Required(), mcp.Description("Capture that gets the reference")),
		mcp.WithNumber("target_id", mcp.Required(), mcp.Description("Capture being referenced")),
	), s.linkCaptures)

	s.mcp.AddTool(mcp.NewTool("unlink_captures",
		mcp.WithDescription("Remove a link by deleting the matching references from the source content."),
		mcp.WithNumber("link_id", mcp.Required(), mcp.Description("Link id as returned by get_links")),
	), s.unlinkCaptures)

	s.mcp.AddTool(mcp.NewTool("get_links",
		mcp.WithDescription("List the captures a capture links to."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Capture id")),
	), s.getLinks)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("List the captures that link to a capture."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Capture id")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_captures",
		mcp.WithDescription("List all captures, newest first, as id, title and slug."),
	), s.listCaptures)

	s.mcp.AddTool(mcp.NewTool("get_capture_contract",
		mcp.WithDescription("Returns the capture format contract. "+
			"Call this before creating or updating captures."),
	), s.getCaptureContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Capture Format Contract",
			mcp.WithResourceDescription("How captures reference each other and which metadata is generated."),
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

// idArg extracts a required positive id. JSON numbers arrive as float64.
func idArg(req mcp.CallToolRequest, key string) (int64, error) {
	v, ok := req.GetArguments()[key].(float64)
	if !ok || v < 1 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

// stringArg returns the argument and whether it was present.
func stringArg(req mcp.CallToolRequest, key string) (string, bool) {
	v, ok := req.GetArguments()[key].(string)
	return v, ok
}

// tagsArg returns nil when the key is absent, so callers can tell "keep"
// from "clear".
func tagsArg(req mcp.CallToolRequest) ([]string, error) {
	raw, ok := req.GetArguments()["tags"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("tags must be an array of strings")
	}
	tags := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("tags must be an array of strings")
		}
		tags = append(tags, s)
	}
	return tags, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(apperr.Message(err))
}

func (s *Server) createCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := tagsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, _ := stringArg(req, "title")

	d, err := s.svc.CreateNote(ctx, s.owner, noteservice.CreateInput{Content: content, Title: title, Tags: tags})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(d)
}

func (s *Server) readCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetNote(ctx, s.owner, id)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(d)
}

func (s *Server) updateCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := tagsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := noteservice.UpdateInput{Tags: tags}
	if v, ok := stringArg(req, "content"); ok {
		in.Content = &v
	}
	if v, ok := stringArg(req, "title"); ok {
		in.Title = &v
	}
	in.IfMatch, _ = stringArg(req, "if_match")

	d, err := s.svc.UpdateNote(ctx, s.owner, id, in)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(d)
}

func (s *Server) linkCaptures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := idArg(req, "source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tgt, err := idArg(req, "target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.CreateLink(ctx, s.owner, src, tgt)
	if err != nil {
		return errResult(err), nil
	}
	if !res.Created {
		return mcp.NewToolResultText(fmt.Sprintf("already linked: link %d", res.Link.ID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("linked: link %d", res.Link.ID)), nil
}

func (s *Server) unlinkCaptures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "link_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, err := s.svc.DeleteLink(ctx, s.owner, id)
	if err != nil {
		return errResult(err), nil
	}
	if !removed {
		return mcp.NewToolResultError("link is still referenced by the source content"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unlinked: link %d", id)), nil
}

func (s *Server) getLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Links(ctx, s.owner, id)
	if err != nil {
		return errResult(err), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no links found"), nil
	}
	return jsonResult(links)
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := idArg(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Backlinks(ctx, s.owner, id)
	if err != nil {
		return errResult(err), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(links)
}

type captureSummary struct {
	ID    int64    `json:"id"`
	Title string   `json:"title"`
	Slug  string   `json:"slug"`
	Tags  []string `json:"tags"`
}

func (s *Server) listCaptures(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListNotes(ctx, s.owner)
	if err != nil {
		return errResult(err), nil
	}
	out := make([]captureSummary, len(items))
	for i, it := range items {
		out[i] = captureSummary{ID: it.ID, Title: it.Title, Slug: it.Slug, Tags: it.Tags}
	}
	return jsonResult(out)
}

func (s *Server) getCaptureContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CaptureFormatContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     CaptureFormatContract,
		},
	}, nil
}
