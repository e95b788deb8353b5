package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/middleware"
	"github.com/sourpie/gitknow/internal/port"
	"github.com/sourpie/gitknow/internal/service"
)

// Server implements the Model Context Protocol (MCP) server.
// It lets external agents ask questions about projects and read their commits.
// Every call is made on behalf of the user named by the bearer token.
type Server struct {
	svc    *service.ProjectService
	jwt    middleware.JWTConfig
	port   string
	logger *slog.Logger
}

// NewServer creates a new MCP server.
func NewServer(svc *service.ProjectService, jwt middleware.JWTConfig, port string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, jwt: jwt, port: port, logger: logger}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeUnauthorized   = -32001
)

// Handler returns the HTTP handler serving /mcp and /mcp/sse.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)
	return mux
}

// Start serves MCP on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("MCP server starting", "port", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (s *Server) authenticate(r *http.Request) (*domain.User, error) {
	token := middleware.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, port.ErrUnauthorized
	}
	claims, err := middleware.ValidateJWT(token, s.jwt)
	if err != nil {
		return nil, err
	}
	return claims.UserContext().User(), nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "parse error")
		return
	}

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result = map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "gitknow",
				"version": "1.0.0",
			},
			"capabilities": map[string]any{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	case "tools/list":
		result = map[string]any{"tools": tools}
	case "tools/call":
		user, authErr := s.authenticate(r)
		if authErr != nil {
			writeError(w, req.ID, codeUnauthorized, authErr.Error())
			return
		}
		result, err = s.callTool(r.Context(), user, req.Params)
	default:
		writeError(w, req.ID, codeMethodNotFound, "method not found")
		return
	}

	if err != nil {
		code := codeInternal
		if errors.Is(err, port.ErrInvalidInput) {
			code = codeInvalidParams
		}
		s.logger.Warn("MCP call failed", "method", req.Method, "error", err)
		writeError(w, req.ID, code, err.Error())
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	flusher.Flush()

	<-r.Context().Done()
}

var projectIDSchema = `"project_id": {"type": "string", "description": "Project ID"}`

var tools = []Tool{
	{
		Name:        "ask_question",
		Description: "Ask a question about a project's codebase and get an answer with the files it is based on",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + projectIDSchema + `,
				"question": {"type": "string", "description": "Question about the code"}
			},
			"required": ["project_id", "question"]
		}`),
	},
	{
		Name:        "list_commits",
		Description: "List the stored, summarized commits of a project, most recent first",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + projectIDSchema + `},
			"required": ["project_id"]
		}`),
	},
	{
		Name:        "refresh_commits",
		Description: "Fetch and summarize new commits of a project from its repository",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + projectIDSchema + `},
			"required": ["project_id"]
		}`),
	},
}

type toolArgs struct {
	ProjectID string `json:"project_id"`
	Question  string `json:"question"`
}

func textContent(text string) []map[string]any {
	return []map[string]any{{"type": "text", "text": text}}
}

func (s *Server) callTool(ctx context.Context, user *domain.User, params json.RawMessage) (any, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("%w: params: %w", port.ErrInvalidInput, err)
	}
	var args toolArgs
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return nil, fmt.Errorf("%w: arguments: %w", port.ErrInvalidInput, err)
		}
	}
	if args.ProjectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", port.ErrInvalidInput)
	}

	switch req.Name {
	case "ask_question":
		answer, err := s.svc.Ask(ctx, user, args.ProjectID, args.Question)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for fragment := range answer.Fragments {
			b.WriteString(fragment)
		}
		return map[string]any{
			"content":         textContent(b.String()),
			"file_references": answer.FileReferences,
			"indirect":        answer.Indirect,
		}, nil

	case "list_commits":
		commits, err := s.svc.Commits(ctx, user, args.ProjectID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"content": textContent(formatCommits(commits)),
			"commits": commits,
		}, nil

	case "refresh_commits":
		commits, err := s.svc.RefreshCommits(ctx, user, args.ProjectID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"content": textContent(fmt.Sprintf("%d new commits stored.\n\n%s", len(commits), formatCommits(commits))),
			"commits": commits,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown tool %q", port.ErrInvalidInput, req.Name)
	}
}

func formatCommits(commits []domain.Commit) string {
	var b strings.Builder
	for _, c := range commits {
		hash := c.Hash
		if len(hash) > 7 {
			hash = hash[:7]
		}
		fmt.Fprintf(&b, "%s %s (%s, %s)\n", hash, firstLine(c.Message), c.AuthorName, c.Date.Format(time.DateOnly))
		if c.Summary != "" {
			b.WriteString(c.Summary)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func writeResult(w http.ResponseWriter, id any, result any) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id any, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
