// ABOUTME: MCP server setup for the workout session engine.
// ABOUTME: Wraps the MCP server with the engine and the history repository.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/lift/internal/engine"
	"github.com/harperreed/lift/internal/storage"
)

// Server wraps the MCP server with engine access.
type Server struct {
	mcpServer *mcp.Server
	engine    *engine.Engine
	repo      storage.Repository
}

// NewServer creates a new MCP server driving eng. repo serves history and may be nil.
func NewServer(eng *engine.Engine, repo storage.Repository) (*Server, error) {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "lift",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		engine:    eng,
		repo:      repo,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	if _, err := s.checkRecovery(ctx); err != nil {
		return err
	}
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// checkRecovery validates any stored snapshot against its own plan before the
// first tool call, so an interrupted workout is held as an offer.
func (s *Server) checkRecovery(ctx context.Context) (engine.Result, error) {
	res, err := s.engine.TryRecoverOnStartup(ctx, s.engine.SavedPlanID())
	if err != nil {
		return res, fmt.Errorf("failed to check recovery: %w", err)
	}
	return res, nil
}
