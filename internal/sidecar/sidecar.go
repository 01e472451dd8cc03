// Package sidecar implements the status sidecar (C9): the only part of
// the system the child AI assistant talks to directly. It exposes a
// single MCP tool, report_status, over stdio, and forwards each call to
// the supervisor's status ingress with a bounded, swallowed-on-failure
// retry policy.
package sidecar

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marlowe-finch/corral/internal/errs"
)

// Config carries the identity and destination this sidecar instance was
// launched with — all three are injected as environment variables in the
// config file entry the supervisor writes (internal/configwriter).
type Config struct {
	SessionID  uint32
	InstanceID string
	StatusURL  string
	HTTPClient *http.Client
}

type statusPayload struct {
	SessionID        uint32 `json:"session_id"`
	InstanceID       string `json:"instance_id"`
	State            string `json:"state"`
	Message          string `json:"message"`
	NeedsInputPrompt string `json:"needs_input_prompt,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}

// backoffSchedule is the exponential-backoff delay before each retry;
// len(backoffSchedule)+1 is the total attempt budget.
var backoffSchedule = []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}

// New builds the MCP server for this sidecar, registering report_status
// as its only tool and posting an initial idle status once the client
// completes initialization.
func New(cfg Config) *server.MCPServer {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest, result *mcp.InitializeResult) {
		cfg.post(ctx, "idle", "session started", "")
	})

	s := server.NewMCPServer(
		"corral-sidecar",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithHooks(hooks),
	)

	tool := mcp.NewTool("report_status",
		mcp.WithDescription("Report this coding session's current status to the corral supervisor."),
		mcp.WithString("state",
			mcp.Required(),
			mcp.Description("One of idle, working, needs_input, finished, error."),
			mcp.Enum("idle", "working", "needs_input", "finished", "error"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("A short human-readable status message."),
		),
		mcp.WithString("needsInputPrompt",
			mcp.Description("When state is needs_input, the question being asked of the human."),
		),
	)
	s.AddTool(tool, cfg.handleReportStatus)

	return s
}

// Serve runs the sidecar's MCP server over stdio, blocking until the
// client disconnects.
func Serve(cfg Config) error {
	return server.ServeStdio(New(cfg))
}

func (cfg Config) handleReportStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := req.RequireString("state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	needsInputPrompt := req.GetString("needsInputPrompt", "")

	cfg.post(ctx, state, message, needsInputPrompt)

	return mcp.NewToolResultText("ok"), nil
}

// post sends the status payload with a bounded retry budget. Failures
// (including a wrong-instance 403) are logged and swallowed: a reporting
// failure must never surface back to the assistant and stall it.
func (cfg Config) post(ctx context.Context, state, message, needsInputPrompt string) {
	payload := statusPayload{
		SessionID:        cfg.SessionID,
		InstanceID:       cfg.InstanceID,
		State:            state,
		Message:          message,
		NeedsInputPrompt: needsInputPrompt,
		Timestamp:        time.Now().Unix(),
	}

	if err := postWithRetry(ctx, cfg.HTTPClient, cfg.StatusURL, payload); err != nil {
		log.Printf("sidecar: status report for session %d not delivered: %v", cfg.SessionID, err)
	}
}

func postWithRetry(ctx context.Context, client *http.Client, url string, payload statusPayload) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := postOnce(ctx, client, url, payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if se, ok := err.(*errs.StatusError); ok && se.Kind == errs.StatusNonOKResponse && se.HTTPStatus >= 400 && se.HTTPStatus < 500 {
			return err
		}
		if attempt >= len(backoffSchedule) {
			return lastErr
		}
		select {
		case <-time.After(backoffSchedule[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
