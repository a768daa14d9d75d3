package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/review"
)

// Server exposes the review service as MCP tools. Every call acts as the
// session given at construction.
type Server struct {
	svc     *review.Service
	sess    models.Session
	version string
	logger  *zap.SugaredLogger
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *review.Service, sess models.Session, version string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, sess: sess, version: version, logger: logger}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("crev", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.submitReviewTool())
	srv.AddTool(s.listReviewsTool())
	srv.AddTool(s.getReviewTool())
	srv.AddTool(s.voteTool())
	srv.AddTool(s.finalizeReviewTool())
	srv.AddTool(s.suggestTestsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	s.logger.Warnw("tool failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error()), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// crev_submit_review
func (s *Server) submitReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_submit_review",
		mcp.WithDescription("Submit code for automated review. The code is critiqued and rewritten, both versions are executed in a sandbox, and the resulting review is stored as pending for peer votes."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code to review")),
	)
	return tool, s.handleSubmitReview
}

func (s *Server) handleSubmitReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	rev, err := s.svc.SubmitForReview(ctx, s.sess, code)
	if err != nil {
		return s.toolError("crev_submit_review", err)
	}
	return jsonResult(rev)
}

// crev_list_reviews
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_list_reviews",
		mcp.WithDescription("List reviews with author names, newest first."),
		mcp.WithString("status",
			mcp.Description("Filter by status (default: all)"),
			mcp.Enum("pending", "approved", "rejected", "finally_approved"),
		),
	)
	return tool, s.handleListReviews
}

func (s *Server) handleListReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.ReviewStatus(request.GetString("status", ""))
	reviews, err := s.svc.ListReviews(ctx, status)
	if err != nil {
		return s.toolError("crev_list_reviews", err)
	}

	type reviewOut struct {
		ID               string `json:"id"`
		Author           string `json:"author"`
		Status           string `json:"status"`
		Vulnerabilities  string `json:"vulnerabilities"`
		Changes          string `json:"changes"`
		OriginalVerdict  string `json:"original_verdict"`
		SuggestedVerdict string `json:"suggested_verdict"`
		ExtractionFailed bool   `json:"extraction_failed"`
	}

	out := make([]reviewOut, len(reviews))
	for i, r := range reviews {
		out[i] = reviewOut{
			ID:               r.ID,
			Author:           r.AuthorName,
			Status:           string(r.Status),
			Vulnerabilities:  r.Vulnerabilities,
			Changes:          r.Changes,
			OriginalVerdict:  string(r.OriginalVerdict),
			SuggestedVerdict: string(r.SuggestedVerdict),
			ExtractionFailed: r.ExtractionFailed,
		}
	}
	return jsonResult(out)
}

// crev_get_review
func (s *Server) getReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_get_review",
		mcp.WithDescription("Get a review with its original and suggested code, verdicts, and votes. Accepts a full ID or unique prefix."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID or prefix")),
	)
	return tool, s.handleGetReview
}

func (s *Server) handleGetReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}
	detail, err := s.svc.GetReview(ctx, id)
	if err != nil {
		return s.toolError("crev_get_review", err)
	}
	return jsonResult(detail)
}

// crev_vote
func (s *Server) voteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_vote",
		mcp.WithDescription("Cast a developer vote on a pending review. Two approvals approve it; two disapprovals reject it."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID or prefix")),
		mcp.WithString("choice", mcp.Required(),
			mcp.Description("Vote choice"),
			mcp.Enum("approve", "disapprove"),
		),
	)
	return tool, s.handleVote
}

func (s *Server) handleVote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}
	choice, err := request.RequireString("choice")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: choice"), nil
	}
	rev, err := s.svc.Vote(ctx, s.sess, id, models.VoteChoice(choice))
	if err != nil {
		return s.toolError("crev_vote", err)
	}
	return jsonResult(map[string]string{"id": rev.ID, "status": string(rev.Status)})
}

// crev_finalize_review
func (s *Server) finalizeReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_finalize_review",
		mcp.WithDescription("Give lead sign-off on an approved review, marking it finally approved."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID or prefix")),
	)
	return tool, s.handleFinalizeReview
}

func (s *Server) handleFinalizeReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}
	rev, err := s.svc.Finalize(ctx, s.sess, id)
	if err != nil {
		return s.toolError("crev_finalize_review", err)
	}
	return jsonResult(map[string]string{"id": rev.ID, "status": string(rev.Status)})
}

// crev_suggest_tests
func (s *Server) suggestTestsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("crev_suggest_tests",
		mcp.WithDescription("Suggest additional test cases for code and run them together with the code in the sandbox."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Code under test")),
		mcp.WithString("tests", mcp.Description("Existing test cases")),
	)
	return tool, s.handleSuggestTests
}

func (s *Server) handleSuggestTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	got, err := s.svc.SuggestTests(ctx, s.sess, code, request.GetString("tests", ""))
	if err != nil {
		return s.toolError("crev_suggest_tests", err)
	}
	return jsonResult(got)
}
