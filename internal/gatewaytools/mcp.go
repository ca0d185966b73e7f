package gatewaytools

import (
	"context"
	"fmt"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// MCPServerConfig describes one configured MCP server connection.
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// MCPManager connects to configured MCP servers at startup, discovers
// their tools, and dispatches calls by name. It implements MCPRegistry.
type MCPManager struct {
	mu      sync.RWMutex
	clients map[string]*mcpclient.Client
	owner   map[string]string // tool name -> server name
}

// NewMCPManager returns an empty manager; call Connect per configured
// server before wiring it into an Executor.
func NewMCPManager() *MCPManager {
	return &MCPManager{
		clients: map[string]*mcpclient.Client{},
		owner:   map[string]string{},
	}
}

// Connect starts a stdio-transport MCP server, performs the protocol
// handshake, and registers its advertised tools.
func (m *MCPManager) Connect(ctx context.Context, cfg MCPServerConfig) error {
	envSlice := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		envSlice = append(envSlice, k+"="+v)
	}
	client, err := mcpclient.NewStdioMCPClient(cfg.Command, envSlice, cfg.Args...)
	if err != nil {
		return fmt.Errorf("create mcp client %s: %w", cfg.Name, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "mama", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return fmt.Errorf("initialize mcp server %s: %w", cfg.Name, err)
	}

	toolsResult, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools on mcp server %s: %w", cfg.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[cfg.Name] = client
	for _, t := range toolsResult.Tools {
		m.owner[t.Name] = cfg.Name
	}
	return nil
}

func (m *MCPManager) IsRegistered(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.owner[name]
	return ok
}

func (m *MCPManager) Call(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	m.mu.RLock()
	serverName, ok := m.owner[name]
	var client *mcpclient.Client
	if ok {
		client = m.clients[serverName]
	}
	m.mu.RUnlock()
	if !ok || client == nil {
		return Result{}, fmt.Errorf("mcp tool %q not registered", name)
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := client.CallTool(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("call mcp tool %s: %w", name, err)
	}
	if res.IsError {
		return failError(extractText(res)), nil
	}
	return ok2(map[string]interface{}{"text": extractText(res)}), nil
}

func extractText(res *mcpgo.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// Close shuts down every connected MCP server.
func (m *MCPManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		_ = c.Close()
	}
}
