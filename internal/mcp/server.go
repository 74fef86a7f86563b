// Package mcp exposes operator tools over the Model Context Protocol.
//
// The server is served over stdio by `intake mcp`; it reads the same store and
// job catalog as the HTTP server and never runs conversation turns.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/intake/internal/catalog"
	"github.com/hurttlocker/intake/internal/intake"
	"github.com/hurttlocker/intake/internal/record"
	"github.com/hurttlocker/intake/internal/store"
)

// maxListLimit caps list tools.
const maxListLimit = 100

// timeNow is the clock for "today" counts.
var timeNow = time.Now

// ServerConfig holds what the MCP server needs.
type ServerConfig struct {
	Engine  *intake.Engine
	Store   store.Store
	Catalog *catalog.Catalog
	Version string
}

// NewServer creates an MCP server with the intake tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Intake",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerRecordTool(s, cfg.Engine)
	registerHistoryTool(s, cfg.Engine)
	registerProgressTool(s, cfg.Engine)
	registerSettingTool(s, cfg.Engine)
	if cfg.Catalog != nil {
		registerJobsTool(s, cfg.Catalog)
	}
	if cfg.Store != nil {
		registerStatsResource(s, cfg.Store)
	}
	return s
}

// --- Tools ---

func kindParam() mcp.ToolOption {
	return mcp.WithString("kind",
		mcp.Description("Conversation kind: 'interview' (default) or 'survey'"),
	)
}

// requestKind reads the optional kind argument.
func requestKind(req mcp.CallToolRequest) (record.Kind, error) {
	k, err := req.RequireString("kind")
	if err != nil || k == "" {
		return record.KindInterview, nil
	}
	kind, ok := record.ParseKind(k)
	if !ok {
		return "", fmt.Errorf("unknown kind %q", k)
	}
	return kind, nil
}

func registerRecordTool(s *server.MCPServer, eng *intake.Engine) {
	tool := mcp.NewTool("intake_record",
		mcp.WithDescription("Get the structured record of one session: extracted fields, completion flag, progress score and pending milestones."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		kindParam(),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil || id == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		kind, err := requestKind(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sess, err := eng.Session(ctx, kind, id)
		if err != nil {
			return sessionError(err, kind, id), nil
		}
		return jsonResult(map[string]interface{}{
			"record":   sess.Record,
			"progress": sess.Progress,
			"pending":  sess.Pending,
		}), nil
	})
}

func registerHistoryTool(s *server.MCPServer, eng *intake.Engine) {
	tool := mcp.NewTool("intake_history",
		mcp.WithDescription("Get the transcript of one session, oldest turn first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		kindParam(),
		mcp.WithNumber("last",
			mcp.Description("Only return the last N turns (default: all)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil || id == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		kind, err := requestKind(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sess, err := eng.Session(ctx, kind, id)
		if err != nil {
			return sessionError(err, kind, id), nil
		}
		turns := sess.Turns
		if last, err := req.RequireFloat("last"); err == nil && int(last) > 0 && int(last) < len(turns) {
			turns = turns[len(turns)-int(last):]
		}
		return jsonResult(map[string]interface{}{
			"session_id": id,
			"kind":       kind,
			"turns":      turns,
			"count":      len(turns),
		}), nil
	})
}

func registerProgressTool(s *server.MCPServer, eng *intake.Engine) {
	tool := mcp.NewTool("intake_progress",
		mcp.WithDescription("List records of a kind, newest first, with progress scores and completed/in-progress/today counts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		kindParam(),
		mcp.WithNumber("limit",
			mcp.Description("Maximum records to return (default 20, max 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := requestKind(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts := store.ListOpts{Limit: 20}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit := int(limitVal)
			if limit > maxListLimit {
				limit = maxListLimit
			}
			if limit > 0 {
				opts.Limit = limit
			}
		}
		list, err := eng.Records(ctx, kind, opts, timeNow())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing records: %v", err)), nil
		}
		return jsonResult(list), nil
	})
}

func registerSettingTool(s *server.MCPServer, eng *intake.Engine) {
	tool := mcp.NewTool("intake_setting",
		mcp.WithDescription("Read or change the chat switch of a kind. Without 'enabled' the current state is returned. A disabled chat answers every message with a fixed notice and stores nothing."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		kindParam(),
		mcp.WithBoolean("enabled",
			mcp.Description("New state of the switch"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := requestKind(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if on, err := req.RequireBool("enabled"); err == nil {
			if err := eng.SetEnabled(ctx, kind, on); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("setting switch: %v", err)), nil
			}
		}
		on, err := eng.Enabled(ctx, kind)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading switch: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{"kind": kind, "enabled": on}), nil
	})
}

func registerJobsTool(s *server.MCPServer, cat *catalog.Catalog) {
	tool := mcp.NewTool("intake_jobs",
		mcp.WithDescription("List the job catalog (title, filename, preview), or get one job's full description by filename."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("filename",
			mcp.Description("Job file name, e.g. 'auxiliar_contable.txt'. Omit to list all jobs."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if name, err := req.RequireString("filename"); err == nil && name != "" {
			e, err := cat.Get(name)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(e), nil
		}
		jobs := cat.List()
		return jsonResult(map[string]interface{}{"jobs": jobs, "total": len(jobs)}), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"intake://stats",
		"Intake Statistics",
		mcp.WithResourceDescription("Stored turn and record counts plus database size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

// --- Helpers ---

func jsonResult(v interface{}) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

func sessionError(err error, kind record.Kind, id string) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no %s session %q", kind, id))
	}
	return mcp.NewToolResultError(fmt.Sprintf("reading session: %v", err))
}
