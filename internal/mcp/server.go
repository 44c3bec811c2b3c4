package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dogkeeper886/mem0/internal/apperr"
	"github.com/dogkeeper886/mem0/internal/memory"
	"github.com/dogkeeper886/mem0/internal/models"
	"github.com/dogkeeper886/mem0/internal/project"
)

const protocolVersion = "2024-11-05"

// Server implements an MCP stdio server that runs the memory service
// in-process, so project context resolves from the client's directory.
type Server struct {
	svc     *memory.Service
	env     project.Env
	version string
	logger  *slog.Logger
}

// NewServer creates a new MCP server. env is the default project
// environment for tools called without a work_dir.
func NewServer(svc *memory.Service, env project.Env, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, env: env, version: version, logger: logger}
}

// Serve reads newline-delimited requests from in and writes responses to out.
// It returns when in is exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	// Increase buffer for large messages
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	enc := json.NewEncoder(out)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("unparseable request", "error", err)
			if err := enc.Encode(errorResponse(nil, codeParseError, "parse error: "+err.Error())); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	if req.isNotification() {
		s.logger.Debug("notification", "method", req.Method)
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: ToolDefinitions()}}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]string{}}
	default:
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.logger.Debug("ignoring malformed initialize params", "error", err)
		}
	}
	s.logger.Info("client connected",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol", params.ProtocolVersion,
	)

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: ServerCapabilities{
				Tools: &ToolCapabilities{},
			},
			ServerInfo: ServerInfo{
				Name:    "claude-memory",
				Version: s.version,
			},
			Instructions: "Use memory_search before starting work to recall project decisions, " +
				"and memory_add to record anything worth remembering.",
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params: "+err.Error())
	}

	result, err := s.dispatchTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "kind", apperr.KindOf(err), "error", err)
		return toolResult(req.ID, toolError(err), true)
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolResult(req.ID, "encode result: "+err.Error(), true)
	}
	return toolResult(req.ID, string(text), false)
}

func (s *Server) dispatchTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "memory_add":
		var a models.AddRequest
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		added, err := s.svc.Add(ctx, s.envFor(a.WorkDir, a.SessionID), &a)
		if err != nil {
			return nil, err
		}
		return models.AddResponse{Results: added}, nil

	case "memory_search":
		var a models.SearchRequest
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		results, err := s.svc.Search(ctx, s.envFor(a.WorkDir, a.SessionID), &a)
		if err != nil {
			return nil, err
		}
		return models.SearchResponse{Results: results}, nil

	case "memory_list":
		var a models.UserRequest
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		memories, err := s.svc.ListAll(ctx, a.UserID)
		if err != nil {
			return nil, err
		}
		return models.ListResponse{Results: memories}, nil

	case "memory_delete":
		var a models.DeleteRequest
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := s.svc.DeleteOne(ctx, a.MemoryID); err != nil {
			return nil, err
		}
		return models.SuccessResponse{Success: true}, nil

	case "memory_reset":
		var a models.UserRequest
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := s.svc.Reset(ctx, a.UserID); err != nil {
			return nil, err
		}
		return models.SuccessResponse{Success: true}, nil

	case "memory_project":
		var a models.ProjectRequest
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.svc.Project(ctx, s.envFor(a.WorkDir, a.SessionID)), nil

	default:
		return nil, apperr.Invalid("name", "unknown tool: %s", name)
	}
}

func (s *Server) envFor(workDir, sessionID string) project.Env {
	env := s.env
	if workDir != "" {
		env.WorkDir = workDir
	}
	if sessionID != "" {
		env.SessionID = sessionID
	}
	return env
}

// --- Helpers ---

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Invalid("arguments", "%v", err)
	}
	return nil
}

func toolError(err error) string {
	if kind := apperr.KindOf(err); kind != "" {
		return fmt.Sprintf("%s: %s", kind, err)
	}
	return err.Error()
}

func toolResult(id json.RawMessage, text string, isError bool) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result: CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: text}},
			IsError: isError,
		},
	}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
