package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docsync/internal/indexer"
	"github.com/dshills/docsync/internal/searcher"
	"github.com/dshills/docsync/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another run is already in progress
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleSyncDocs runs one sync. Partial failures are reported in the result,
// not as errors.
func (s *Server) handleSyncDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := request.GetString("mode", indexer.ModeSync)
	opts := indexer.RunOptions{
		VersionTag: request.GetString("version_tag", ""),
		Freeze:     request.GetBool("freeze", false),
		FromRef:    request.GetString("from", ""),
		ToRef:      request.GetString("to", ""),
		Worktree:   request.GetBool("worktree", false),
	}

	var (
		summary *types.RunSummary
		err     error
	)
	switch mode {
	case indexer.ModeSync:
		summary, err = s.indexer.Sync(ctx, opts)
	case indexer.ModeInit:
		summary, err = s.indexer.Init(ctx, opts)
	case indexer.ModeUpdateDB:
		summary, err = s.indexer.UpdateDB(ctx, opts)
	case indexer.ModeDocPR:
		sha := request.GetString("sha", "")
		if sha == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "sha parameter is required for doc-pr", map[string]interface{}{
				"param":  "sha",
				"reason": "missing or empty",
			})
		}
		summary, err = s.indexer.DocPR(ctx, sha, opts)
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   mode,
			"allowed": []string{indexer.ModeSync, indexer.ModeInit, indexer.ModeDocPR, indexer.ModeUpdateDB},
		})
	}

	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "a sync is already running", nil)
	}
	if summary == nil {
		return nil, newMCPError(ErrorCodeInternalError, "sync failed", map[string]interface{}{
			"error": errString(err),
		})
	}

	response := summaryResponse(summary)
	response["mode"] = mode
	response["version_tag"] = opts.VersionTag
	response["success"] = err == nil && !summary.HasFailures()
	if err != nil {
		response["error"] = err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchDocs handles the search_docs tool invocation
func (s *Server) handleSearchDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := request.GetInt("limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := request.GetString("search_mode", string(searcher.SearchModeHybrid))
	if !contains(searchModes, mode) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": searchModes,
		})
	}

	req := searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     searcher.SearchMode(mode),
		UseCache: true,
	}
	if filters, ok := request.GetArguments()["filters"].(map[string]interface{}); ok {
		req.Filter, req.MinScore = parseFilters(filters)
	}

	resp, err := s.indexer.Search(ctx, req)
	if err != nil {
		code := ErrorCodeInternalError
		if errors.Is(err, searcher.ErrKeywordUnsupported) || errors.Is(err, searcher.ErrEmptyQuery) {
			code = ErrorCodeInvalidParams
		}
		return nil, newMCPError(code, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		rec := r.Record
		results = append(results, map[string]interface{}{
			"rank":            r.Rank,
			"relevance_score": r.RelevanceScore,
			"element_id":      rec.ElementID,
			"version_tag":     rec.VersionTag,
			"qualified_name":  rec.QualifiedName,
			"kind":            rec.Kind,
			"language":        rec.Language,
			"file_path":       rec.FilePath,
			"signature":       rec.Signature,
			"hierarchy_path":  rec.HierarchyPath,
			"text":            rec.Text,
		})
	}

	response := map[string]interface{}{
		"query":         query,
		"search_mode":   resp.SearchMode,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.indexer.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	tags := make(map[string]interface{}, len(st.Tags))
	for name, ts := range st.Tags {
		entry := map[string]interface{}{
			"last_ref":     ts.LastRef,
			"failed_paths": ts.FailedPaths,
		}
		if !ts.SyncedAt.IsZero() {
			entry["synced_at"] = ts.SyncedAt.Format(time.RFC3339)
		}
		tags[name] = entry
	}

	response := map[string]interface{}{
		"root":    st.Root,
		"project": st.Project,
		"head":    st.Head,
		"running": st.Running,
		"tags":    tags,
		"index": map[string]interface{}{
			"backend":     st.Store.Backend,
			"records":     st.Store.Records,
			"by_tag":      st.Store.ByTag,
			"by_language": st.Store.ByLanguage,
			"by_kind":     st.Store.ByKind,
		},
	}
	if !st.Store.LastUpdated.IsZero() {
		response["index"].(map[string]interface{})["last_updated"] = st.Store.LastUpdated.Format(time.RFC3339)
	}
	if st.LastRun != nil {
		last := summaryResponse(st.LastRun.Summary)
		last["id"] = st.LastRun.ID
		last["mode"] = st.LastRun.Mode
		last["version_tag"] = st.LastRun.VersionTag
		last["started_at"] = st.LastRun.StartedAt.Format(time.RFC3339)
		last["cancelled"] = st.LastRun.Cancelled
		response["last_run"] = last
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// summaryResponse renders run counts; the first five errors are included
func summaryResponse(s *types.RunSummary) map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	response := map[string]interface{}{
		"generated":       s.Generated,
		"refreshed":       s.Refreshed,
		"preserved":       s.Preserved,
		"extracted":       s.Extracted,
		"failed":          s.Failed,
		"removed":         s.Removed,
		"upserts_written": s.UpsertsWritten,
		"upserts_skipped": s.UpsertsSkipped,
		"deletes":         s.Deletes,
		"unsynced":        s.Unsynced,
		"files_parsed":    s.FilesParsed,
		"parse_errors":    s.ParseErrors,
		"duration_ms":     s.Duration.Milliseconds(),
	}
	if len(s.FailedFiles) > 0 {
		response["failed_files"] = s.FailedFiles
	}
	if errorCount := len(s.ErrorMessages); errorCount > 5 {
		response["errors"] = s.ErrorMessages[:5]
		response["error_count"] = errorCount
	} else if errorCount > 0 {
		response["errors"] = s.ErrorMessages
	}
	return response
}

// parseFilters reads the filters object of search_docs
func parseFilters(args map[string]interface{}) (types.Filter, float64) {
	var f types.Filter
	if tag, ok := args["version_tag"].(string); ok {
		f.VersionTag = types.Tag(tag)
	}
	f.Language = getStringDefault(args, "language", "")
	f.Kind = types.ElementKind(getStringDefault(args, "kind", ""))
	f.FilePath = getStringDefault(args, "file_path", "")
	if prefix, ok := args["hierarchy_prefix"].([]interface{}); ok {
		for _, p := range prefix {
			if s, ok := p.(string); ok {
				f.HierarchyPrefix = append(f.HierarchyPrefix, s)
			}
		}
	}
	minScore, _ := args["min_relevance"].(float64)
	return f, minScore
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
