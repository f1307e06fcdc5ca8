package server

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/comigor/groq-extension-go/internal/dispatch"
	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/pkg/tools"
)

// newMCPServer registers every tool of the registry under its snake_case
// name. Calls go through the dispatcher so panics and tool errors are
// handled the same way as signed HTTP requests.
func newMCPServer(d *dispatch.Dispatcher, registry *tools.Registry, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(extensionName, version, mcpserver.WithToolCapabilities(false))
	for _, t := range registry.List() {
		desc := t.Descriptor()
		s.AddTool(mcp.NewToolWithRawSchema(desc.Name, desc.Description, desc.Parameters), toolHandler(d, t))
	}
	return s
}

func newMCPBridge(d *dispatch.Dispatcher, registry *tools.Registry, version string) *mcpserver.SSEServer {
	return mcpserver.NewSSEServer(newMCPServer(d, registry, version))
}

func toolHandler(d *dispatch.Dispatcher, t tools.Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		resp, err := d.Invoke(ctx, dispatch.Call{Tool: t, Request: tools.Request{Arguments: args}})
		if err != nil {
			logger.L.Error("MCP tool call failed", "tool", t.Descriptor().ID, "error", err)
			return mcp.NewToolResultError(dispatch.AsError(err).Message), nil
		}
		return mcp.NewToolResultText(strings.Join(resp.Texts(), "\n")), nil
	}
}
