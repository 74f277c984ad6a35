package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docsync/internal/indexer"
)

const (
	// ServerName is the MCP server name
	ServerName = "docsync"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes one repository's indexer over MCP
type Server struct {
	mcp     *server.MCPServer
	indexer *indexer.Indexer
	logger  *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(idx *indexer.Indexer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		indexer: idx,
		logger:  logger,
	}
	s.registerTools()
	return s
}

// Serve runs the server on stdin/stdout until ctx is done or the input is
// closed. Logs go to the logger, never to stdout.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening", "root", s.indexer.Root(), "transport", "stdio")
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(syncDocsTool(), s.handleSyncDocs)
	s.mcp.AddTool(searchDocsTool(), s.handleSearchDocs)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
