package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matthewjhunter/newsalert"
)

const serverVersion = "0.1.0"

// server exposes the article feeds as MCP tools.
type server struct {
	engine *newsalert.Engine
	poller *poller // non-nil when --poll is enabled
	logger *slog.Logger
}

func newServer(engine *newsalert.Engine, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{engine: engine, logger: logger}
}

// mcpServer registers every tool on a new SDK server.
func (s *server) mcpServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "newsalert", Version: serverVersion}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "news_recent",
		Description: "Get the 50 most recently stored articles, newest first.",
	}, s.handleRecent)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "articles_top",
		Description: "Get the 5 newest articles tagged with any of war, religion, economy, tech, politics or world.",
	}, s.handleTop)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "articles_critical",
		Description: "Get up to 3 critical articles: those tagged finance, geopolitics and religion. Acknowledged articles are left out unless include_acknowledged is set.",
	}, s.handleCritical)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "article_mark_read",
		Description: "Acknowledge an article so it leaves the critical feed. Call this after presenting a critical article to the user.",
	}, s.handleMarkRead)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "news_page",
		Description: "Page through all stored articles by publication date, newest first.",
	}, s.handlePage)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "ingest_now",
		Description: "Fetch the configured feeds immediately instead of waiting for the next poll.",
	}, s.handleIngestNow)

	return srv
}

// run serves MCP over stdin/stdout until the client disconnects or ctx ends.
func (s *server) run(ctx context.Context) error {
	s.logger.Info("newsalert-mcp starting", "poll", s.poller != nil)
	return s.mcpServer().Run(ctx, &mcp.StdioTransport{})
}

func (s *server) handleRecent(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, any, error) {
	articles, err := s.engine.RecentNews(ctx)
	return s.articles("news_recent", articles, err)
}

func (s *server) handleTop(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, any, error) {
	articles, err := s.engine.TopArticles(ctx)
	return s.articles("articles_top", articles, err)
}

func (s *server) handleCritical(ctx context.Context, _ *mcp.CallToolRequest, in criticalInput) (*mcp.CallToolResult, any, error) {
	if in.IncludeAcknowledged != nil && *in.IncludeAcknowledged {
		articles, err := s.engine.CriticalArticlesAll(ctx)
		return s.articles("articles_critical", articles, err)
	}
	articles, err := s.engine.CriticalArticles(ctx)
	return s.articles("articles_critical", articles, err)
}

func (s *server) handleMarkRead(ctx context.Context, _ *mcp.CallToolRequest, in articleIDInput) (*mcp.CallToolResult, any, error) {
	if in.ArticleID <= 0 {
		return mcpError("article_id parameter is required"), nil, nil
	}
	if err := s.engine.MarkRead(ctx, in.ArticleID); err != nil {
		return mcpError("%v", err), nil, nil
	}
	s.logger.Info("article_mark_read", "id", in.ArticleID)
	return mcpText("Article %d marked as read.", in.ArticleID), nil, nil
}

func (s *server) handlePage(ctx context.Context, _ *mcp.CallToolRequest, in pageInput) (*mcp.CallToolResult, any, error) {
	var page, limit int
	if in.Page != nil {
		page = *in.Page
	}
	if in.Limit != nil {
		limit = *in.Limit
	}
	articles, err := s.engine.OtherNews(ctx, page, limit)
	return s.articles("news_page", articles, err)
}

func (s *server) handleIngestNow(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, any, error) {
	if s.poller == nil {
		return mcpError("polling is not enabled (start with --poll)"), nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	result, err := s.poller.poll(ctx)
	if err != nil {
		return mcpError("ingest failed: %v", err), nil, nil
	}
	s.logger.Info("ingest_now", "feeds", result.FeedsTotal, "new_articles", result.NewArticles)
	return mcpJSON(result), nil, nil
}

func (s *server) articles(tool string, articles []newsalert.Article, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		s.logger.Error("tool failed", "tool", tool, "error", err)
		return mcpError("%v", err), nil, nil
	}
	s.logger.Debug(tool, "count", len(articles))
	return mcpJSON(articles), nil, nil
}

// --- MCP response helpers ---

func mcpText(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func mcpJSON(data any) *mcp.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return mcpError("marshal response: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func mcpError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: "+format, args...)}},
		IsError: true,
	}
}
