// Package generator writes documentation text for code elements.
//
// The reconciler calls a Generator for every element whose action is
// generate or refresh. A Request carries the element, its ancestors (with
// the first line of their documentation), the README context, the
// configured style and, on refresh, the previous documentation.
//
// Implementations:
//   - OpenAIGenerator: Chat Completions through openai-go
//   - TemplateGenerator: an offline, deterministic summary
//   - Mock: records calls, for tests
//
// # Errors
//
// Generators return *types.GenerationError. Classify decides whether a
// provider failure is worth retrying on the next run:
//
//	rate limit (429), 5xx, timeout    retryable
//	quota, model not found, 401/403   permanent
package generator
