package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type noInput struct{}

type criticalInput struct {
	IncludeAcknowledged *bool `json:"include_acknowledged,omitempty" jsonschema:"Also return articles already acknowledged with article_mark_read (default false)"`
}

type articleIDInput struct {
	ArticleID int64 `json:"article_id" jsonschema:"The article ID to acknowledge"`
}

type pageInput struct {
	Page  *int `json:"page,omitempty"  jsonschema:"1-based page number (default 1)"`
	Limit *int `json:"limit,omitempty" jsonschema:"Articles per page (default 40)"`
}
