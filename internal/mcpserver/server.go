// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notebook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/noteservice"
)

// FormatURI names the document format resource.
const FormatURI = "nbweb://document-format"

// Server wraps the MCP server with notebook tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *noteservice.Service
	viewer models.Viewer
}

// New creates an MCP server with all notebook tools registered. The stdio
// transport is local, so tools act as an editor.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc, viewer: models.EditorViewer}

	s.mcp = server.NewMCPServer(
		"nbweb",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notebook",
		mcp.WithDescription("Ranked search through document text and titles. Results linked from other matches rank higher."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotebook)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the source of a document. Extensionless and .html names are resolved to the source file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical path of the document (e.g. /projects/plan.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new document at the specified path. "+
			"Read the format first via get_document_format or the "+FormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical path for the new document (e.g. /notes/idea.md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the notebook document format")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_format",
		mcp.WithDescription("Returns the notebook document format. "+
			"Call this before creating documents to ensure correct structure."),
	), s.getDocumentFormat)

	s.mcp.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List the subdirectories and documents of a directory."),
		mcp.WithString("dir", mcp.Description("Logical directory (empty for the root)")),
	), s.listDirectory)

	s.mcp.AddTool(mcp.NewTool("cross_references",
		mcp.WithDescription("List the documents a document links to and the documents linking to it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical path of the document")),
	), s.crossReferences)

	s.mcp.AddTool(mcp.NewTool("list_todos",
		mcp.WithDescription("Open todo items grouped by priority, @context and +project."),
		mcp.WithString("dir", mcp.Description("Optional directory to limit the board to")),
	), s.listTodos)

	s.mcp.AddTool(mcp.NewTool("tag_cloud",
		mcp.WithDescription("Every tag with the number of documents carrying it."),
	), s.tagCloud)

	s.mcp.AddTool(mcp.NewTool("refresh_index",
		mcp.WithDescription("Bring the index in step with the files on disk."),
		mcp.WithBoolean("force", mcp.Description("Parse every file even if unchanged")),
	), s.refreshIndex)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Save an image or PDF into the media directory from an http(s) URL or a base64 data URI. "+
			"Returns the saved path and a markdown reference (image or link) to paste into a document."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
	), s.uploadAsset)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Document Format",
			mcp.WithResourceDescription("Markdown document format understood by the notebook."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return toolError(err), nil
	}
	res, err := s.svc.Search(ctx, query, s.viewer)
	if err != nil {
		return toolError(err), nil
	}
	if res.Message != "" {
		return mcp.NewToolResultText(res.Message), nil
	}
	out, _ := json.MarshalIndent(res.Hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return toolError(err), nil
	}
	page, err := s.svc.Document(ctx, path, s.viewer)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(page.Content), nil
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return toolError(err), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return toolError(err), nil
	}
	page, err := s.svc.Create(ctx, path, []byte(content))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", page.Document.LogicalPath)), nil
}

func (s *Server) listDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, err := s.svc.ListDirectory(ctx, req.GetString("dir", "/"), s.viewer)
	if err != nil {
		return toolError(err), nil
	}
	var lines []string
	for _, d := range listing.Dirs {
		lines = append(lines, d+"/")
	}
	for _, d := range listing.Documents {
		lines = append(lines, fmt.Sprintf("%s\t%s", d.Path, d.Title))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("empty directory"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) crossReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return toolError(err), nil
	}
	page, err := s.svc.Document(ctx, path, s.viewer)
	if err != nil {
		return toolError(err), nil
	}
	var b strings.Builder
	b.WriteString("links to:\n")
	for _, l := range page.Outgoing {
		fmt.Fprintf(&b, "  %s\n", l.Path)
	}
	b.WriteString("linked from:\n")
	for _, l := range page.Incoming {
		fmt.Fprintf(&b, "  %s\n", l.Path)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listTodos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	board, err := s.svc.Todos(ctx, req.GetString("dir", ""), s.viewer)
	if err != nil {
		return toolError(err), nil
	}
	if board.Empty() {
		return mcp.NewToolResultText("no open todo items"), nil
	}
	return mcp.NewToolResultText(board.Text()), nil
}

func (s *Server) tagCloud(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cloud, err := s.svc.Tags(ctx, s.viewer)
	if err != nil {
		return toolError(err), nil
	}
	lines := make([]string, 0, len(cloud.Tags))
	for _, t := range cloud.Tags {
		lines = append(lines, fmt.Sprintf("%s (%d)", t.Name, t.Count))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no tags"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) refreshIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parsed, err := s.svc.Refresh(ctx, req.GetBool("force", false), false)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("parsed: %d", parsed)), nil
}

func (s *Server) getDocumentFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormat), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormat,
		},
	}, nil
}
