// ABOUTME: MCP resource implementations for the workout engine.
// ABOUTME: Provides lift://status, lift://plans, and lift://history resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerResources() {
	// lift://status - the live session projection
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "lift://status",
		Name:        "Current Workout",
		Description: "Current exercise, next set, rest countdown, and progress",
		MIMEType:    "application/json",
	}, s.handleStatusResource)

	// lift://plans - every plan the provider knows
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "lift://plans",
		Name:        "Workout Plans",
		Description: "Available workout plans with their exercises",
		MIMEType:    "application/json",
	}, s.handlePlansResource)

	// lift://history - last 10 finished sessions
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "lift://history",
		Name:        "Recent Sessions",
		Description: "Summaries of the last 10 finished sessions",
		MIMEType:    "application/json",
	}, s.handleHistoryResource)
}

// Resource handlers

func (s *Server) handleStatusResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	res := s.engine.Status()
	return jsonResource("lift://status", toOutput(res, string(res.State.Status)))
}

func (s *Server) handlePlansResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	all, err := s.engine.Plans().List()
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return jsonResource("lift://plans", plansOutput{Plans: all})
}

func (s *Server) handleHistoryResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	_, out, err := s.handleListHistory(ctx, nil, historyInput{Limit: 10})
	if err != nil {
		return nil, err
	}
	return jsonResource("lift://history", out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
