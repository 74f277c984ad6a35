package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docsync/internal/indexer"
	"github.com/dshills/docsync/internal/searcher"
	"github.com/dshills/docsync/pkg/types"
)

// Tool names
const (
	ToolSyncDocs   = "sync_docs"
	ToolSearchDocs = "search_docs"
	ToolGetStatus  = "get_status"
)

// syncDocsTool returns the tool definition for sync_docs
func syncDocsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSyncDocs,
		Description: "Bring the documentation index in line with the repository. Runs an incremental sync by default.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "init (full pass), sync (git diff), doc-pr (one commit) or update-db (harvest existing docs only)",
					"enum":        []string{indexer.ModeSync, indexer.ModeInit, indexer.ModeDocPR, indexer.ModeUpdateDB},
					"default":     indexer.ModeSync,
				},
				"version_tag": map[string]interface{}{
					"type":        "string",
					"description": "Index under this version tag; empty for the untagged index",
				},
				"freeze": map[string]interface{}{
					"type":        "boolean",
					"description": "Never call the generator; only index documentation already in source",
					"default":     false,
				},
				"from": map[string]interface{}{
					"type":        "string",
					"description": "Base ref for sync (default: last synced ref)",
				},
				"to": map[string]interface{}{
					"type":        "string",
					"description": "Target ref for sync (default: HEAD)",
				},
				"worktree": map[string]interface{}{
					"type":        "boolean",
					"description": "Sync against the working tree instead of a commit",
					"default":     false,
				},
				"sha": map[string]interface{}{
					"type":        "string",
					"description": "Commit to document, required for doc-pr",
				},
			},
		},
	}
}

// searchDocsTool returns the tool definition for search_docs
func searchDocsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearchDocs,
		Description: "Search the documentation index with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (full-text only)",
					"enum":        searchModes,
					"default":     string(searcher.SearchModeHybrid),
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow search",
					"properties": map[string]interface{}{
						"version_tag": map[string]interface{}{
							"type":        "string",
							"description": "Only records of this version tag; omit for all tags",
						},
						"language": map[string]interface{}{
							"type": "string",
							"enum": []string{types.LangGo, types.LangPython, types.LangJavaScript, types.LangTypeScript, types.LangJava},
						},
						"kind": map[string]interface{}{
							"type": "string",
							"enum": []string{string(types.KindModule), string(types.KindClass), string(types.KindFunction), string(types.KindMethod)},
						},
						"file_path": map[string]interface{}{
							"type":        "string",
							"description": "Repository-relative file path",
						},
						"hierarchy_prefix": map[string]interface{}{
							"type":        "array",
							"description": "Ancestor qualified names, outermost first",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"min_relevance": map[string]interface{}{
							"type":        "number",
							"description": "Minimum relevance score threshold (0.0-1.0)",
							"minimum":     0.0,
							"maximum":     1.0,
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetStatus,
		Description: "Report the last run, per-tag sync state and index statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

var searchModes = []string{
	string(searcher.SearchModeHybrid),
	string(searcher.SearchModeVector),
	string(searcher.SearchModeKeyword),
}
