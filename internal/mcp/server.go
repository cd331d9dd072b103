// Package mcp exposes workflow submission and collection as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"promethium-examples/runner/internal/payload"
	"promethium-examples/runner/internal/services"
	"promethium-examples/runner/pkg/models"
)

// Server exposes workflow operations as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	builder   *payload.Builder
	client    services.WorkflowClient
	runner    *services.Runner
}

// NewServer creates a Server and registers its tools.
func NewServer(version string, builder *payload.Builder, client services.WorkflowClient, runner *services.Runner) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Promethium Workflows",
			version,
			server.WithToolCapabilities(true),
		),
		builder: builder,
		client:  client,
		runner:  runner,
	}

	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server, for use with other transports.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the tools over stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"submit_conformer_search",
			mcp.WithDescription("Submit a conformer search workflow for a molecule"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Label for the molecule; the workflow name is derived from it")),
			mcp.WithString("smiles", mcp.Required(), mcp.Description("SMILES string of the molecule")),
		),
		s.handleSubmit,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get the current status of a workflow"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow ID")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"wait_workflow",
			mcp.WithDescription("Wait for a workflow to finish and write its results to the output directory"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow ID")),
		),
		s.handleWait,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_results",
			mcp.WithDescription("Get the result artifacts of a finished workflow"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow ID")),
		),
		s.handleGetResults,
	)
}

func stringArg(request mcp.CallToolRequest, name string) (string, *mcp.CallToolResult) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", mcp.NewToolResultError("Invalid arguments type")
	}
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", mcp.NewToolResultError("Missing required parameter: " + name)
	}
	return v, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, errResult := stringArg(request, "name")
	if errResult != nil {
		return errResult, nil
	}
	smiles, errResult := stringArg(request, "smiles")
	if errResult != nil {
		return errResult, nil
	}

	req, err := s.builder.BuildOne(payload.Input{Name: name, SMILES: smiles})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid input: %v", err)), nil
	}

	sub := s.runner.SubmitAll(ctx, []*models.WorkflowRequest{req})[0]
	if sub.Err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit: %v", sub.Err)), nil
	}
	return jsonResult(sub.Workflow)
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := stringArg(request, "id")
	if errResult != nil {
		return errResult, nil
	}

	wf, err := s.client.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflow: %v", err)), nil
	}
	return jsonResult(wf)
}

type waitResult struct {
	ID           string                `json:"id"`
	Status       models.WorkflowStatus `json:"status"`
	ResultPath   string                `json:"result_path,omitempty"`
	Conformers   int                   `json:"conformers,omitempty"`
	LowestEnergy float64               `json:"lowest_energy_hartree,omitempty"`
}

func (s *Server) handleWait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := stringArg(request, "id")
	if errResult != nil {
		return errResult, nil
	}

	cols, err := s.runner.CollectAll(ctx, []string{id})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to collect workflow: %v", err)), nil
	}
	col := cols[0]
	if col.Err != nil {
		return mcp.NewToolResultError(col.Err.Error()), nil
	}

	out := waitResult{ID: id, Status: col.Workflow.Status, ResultPath: col.ResultPath}
	if col.Summary != nil {
		out.Conformers = col.Summary.Count
		out.LowestEnergy = col.Summary.LowestEnergy
	}
	return jsonResult(out)
}

func (s *Server) handleGetResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := stringArg(request, "id")
	if errResult != nil {
		return errResult, nil
	}

	res, err := s.client.Results(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get results: %v", err)), nil
	}
	return jsonResult(res)
}
