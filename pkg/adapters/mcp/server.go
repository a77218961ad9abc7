// Package mcp exposes a workflow engine as an MCP server, so agent hosts
// can execute and inspect workflows over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/config"
	"github.com/aretw0/espalier/pkg/domain"
)

// ExecuteResponse is the structured result of the execute_workflow tool.
type ExecuteResponse struct {
	RunID        string                  `json:"run_id" jsonschema_description:"Identifier of this run"`
	Success      bool                    `json:"success" jsonschema_description:"Whether the run completed without errors"`
	FinalResult  any                     `json:"final_result,omitempty" jsonschema_description:"Result of the last completed step"`
	AgentOutputs map[string]any          `json:"agent_outputs,omitempty" jsonschema_description:"Latest output per agent"`
	Errors       []domain.ErrorRecord    `json:"errors,omitempty" jsonschema_description:"Failures recorded during the run"`
	Summary      domain.ExecutionSummary `json:"summary" jsonschema_description:"Aggregate view of the run"`
}

// Engine is the surface of the workflow core the MCP adapter needs.
type Engine interface {
	ExecuteWithMetadata(ctx context.Context, input any, metadata map[string]any) (*domain.Context, error)
	Info() espalier.Info
	Validate() espalier.Report
	Definition() *domain.Config
}

// Server wraps a workflow engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(engine Engine) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("espalier-mcp", strings.TrimSpace(espalier.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	executeTool := mcp.NewTool("execute_workflow",
		mcp.WithDescription("Execute the workflow with the given input and return the run outcome."),
		mcp.WithString("input", mcp.Description("Input data for the workflow (free-form text or JSON)")),
		mcp.WithString("metadata", mcp.Description("JSON object of metadata made available to agents and conditions (optional)")),
		mcp.WithOutputSchema[ExecuteResponse](),
	)
	s.mcpServer.AddTool(executeTool, mcp.NewStructuredToolHandler(s.handleExecute))

	validateTool := mcp.NewTool("validate_workflow",
		mcp.WithDescription("Statically validate the workflow definition and report any issues."),
		mcp.WithOutputSchema[espalier.Report](),
	)
	s.mcpServer.AddTool(validateTool, mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("workflow_info",
		mcp.WithDescription("Get the workflow's configuration, validation state and recent runs."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.engine.Info())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("info failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ExecuteResponse, error) {
	var input any
	if raw, ok := args["input"].(string); ok {
		// Accept JSON payloads, fall back to the raw string.
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			input = decoded
		} else {
			input = raw
		}
	}

	var metadata map[string]any
	if raw, ok := args["metadata"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return ExecuteResponse{}, fmt.Errorf("invalid metadata: %w", err)
		}
	}

	runCtx, err := s.engine.ExecuteWithMetadata(ctx, input, metadata)
	if err != nil {
		return ExecuteResponse{}, fmt.Errorf("execution failed: %w", err)
	}

	summary := runCtx.ExecutionSummary()
	return ExecuteResponse{
		RunID:        runCtx.RunID,
		Success:      summary.Success,
		FinalResult:  summary.FinalResult,
		AgentOutputs: runCtx.AgentOutputs,
		Errors:       runCtx.Errors,
		Summary:      summary,
	}, nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (espalier.Report, error) {
	return s.engine.Validate(), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("workflow://definition", "Workflow Definition",
		mcp.WithMIMEType("application/yaml"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := config.ExportYAML(s.engine.Definition())
		if err != nil {
			return nil, fmt.Errorf("failed to export workflow definition: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "workflow://definition",
				MIMEType: "application/yaml",
				Text:     string(data),
			},
		}, nil
	})
}
