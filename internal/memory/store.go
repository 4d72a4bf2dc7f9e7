// Package memory records workflow events to the long-term memory store.
package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/outreach-console/internal/apperrors"
)

var tracer = otel.Tracer("outreach.internal.memory")

const (
	serviceName         = "memory"
	protocolVersion     = "2024-11-05"
	sessionHeader       = "mcp-session-id"
	defaultMemoryUser   = "default-user"
	defaultStoreTimeout = 30 * time.Second
)

// Store persists one memory record.
type Store interface {
	AddMemory(ctx context.Context, content, ownerKey string) error
}

// MemMachineConfig configures the MCP memory-store client.
type MemMachineConfig struct {
	BaseURL    string
	UserID     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// MemMachineClient talks JSON-RPC to a MemMachine MCP server. The session id
// is obtained once and reused until a call fails.
type MemMachineClient struct {
	mcpURL string
	userID string
	http   *http.Client

	mu        sync.Mutex
	sessionID string
	requestID int
}

// NewMemMachineClient validates cfg and returns a client.
func NewMemMachineClient(cfg MemMachineConfig) (*MemMachineClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("memory: base URL required")
	}
	if cfg.UserID == "" {
		cfg.UserID = defaultMemoryUser
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStoreTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &MemMachineClient{
		mcpURL: base + "/mcp/",
		userID: cfg.UserID,
		http:   httpClient,
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AddMemory stores content for ownerKey (the configured user when blank).
func (c *MemMachineClient) AddMemory(ctx context.Context, content, ownerKey string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.Precondition("add memory", "content required")
	}
	if ownerKey == "" {
		ownerKey = c.userID
	}

	ctx, span := tracer.Start(ctx, "memory.add")
	defer span.End()
	span.SetAttributes(attribute.String("outreach.memory.owner", ownerKey))

	sessionID, err := c.session(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session")
		return apperrors.External(serviceName, "initialize", err)
	}

	args := map[string]any{
		"param": map[string]string{
			"user_id": ownerKey,
			"content": content,
		},
	}
	_, err = c.call(ctx, sessionID, rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID(),
		Method:  "tools/call",
		Params:  map[string]any{"name": "add_memory", "arguments": args},
	})
	if err != nil {
		c.resetSession()
		span.RecordError(err)
		span.SetStatus(codes.Error, "add_memory")
		return apperrors.External(serviceName, "add_memory", err)
	}
	return nil
}

func (c *MemMachineClient) nextID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestID++
	return c.requestID
}

func (c *MemMachineClient) resetSession() {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}

// session returns the cached session id or performs the MCP handshake.
func (c *MemMachineClient) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.sessionID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mcpURL, nil)
	if err != nil {
		return "", fmt.Errorf("memory: build session request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("memory: session request: %w", err)
	}
	// The GET opens an event stream; only the header is needed.
	sessionID := resp.Header.Get(sessionHeader)
	resp.Body.Close()
	if sessionID == "" {
		return "", fmt.Errorf("memory: server did not return %s", sessionHeader)
	}

	if _, err := c.call(ctx, sessionID, rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID(),
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]string{"name": "outreach-console", "version": "1.0.0"},
		},
	}); err != nil {
		return "", err
	}
	if err := c.notify(ctx, sessionID, "notifications/initialized"); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	return sessionID, nil
}

func (c *MemMachineClient) newRequest(ctx context.Context, sessionID string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("memory: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mcpURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("memory: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set(sessionHeader, sessionID)
	req.Header.Set("user-id", c.userID)
	return req, nil
}

func (c *MemMachineClient) notify(ctx context.Context, sessionID, method string) error {
	req, err := c.newRequest(ctx, sessionID, rpcRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory: %s: %w", method, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory: %s returned status %d", method, resp.StatusCode)
	}
	return nil
}

// call posts one JSON-RPC request and returns the result of the reply, which
// may arrive as plain JSON or as SSE data lines.
func (c *MemMachineClient) call(ctx context.Context, sessionID string, rpc rpcRequest) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, sessionID, rpc)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory: %s: %w", rpc.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("memory: %s returned status %d: %s", rpc.Method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var out rpcResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
			return nil, fmt.Errorf("memory: decode %s: %w", rpc.Method, err)
		}
		return out.result(rpc.Method)
	}
	return readEventStream(resp.Body, rpc.Method)
}

func (r rpcResponse) result(method string) (json.RawMessage, error) {
	if r.Error != nil {
		return nil, fmt.Errorf("memory: %s error %d: %s", method, r.Error.Code, r.Error.Message)
	}
	if r.Result == nil {
		return nil, fmt.Errorf("memory: no result for %s", method)
	}
	return r.Result, nil
}

func readEventStream(body io.Reader, method string) (json.RawMessage, error) {
	scanner := bufio.NewScanner(io.LimitReader(body, 1<<20))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var out rpcResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[len("data:"):])), &out); err != nil {
			continue
		}
		if out.Result != nil || out.Error != nil {
			return out.result(method)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("memory: read %s stream: %w", method, err)
	}
	return nil, fmt.Errorf("memory: no result for %s", method)
}

var _ Store = (*MemMachineClient)(nil)
