package mcpserver

import (
	"fmt"

	"agent-arena/internal/apperr"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"
)

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

func toolError(code, message string) *mcp.CallToolResult {
	return kindError(code, "", message)
}

func kindError(code, kind, message string) *mcp.CallToolResult {
	body := map[string]any{
		"code":    code,
		"message": message,
	}
	if kind != "" {
		body["kind"] = kind
	}
	result := mcp.NewToolResultStructured(
		map[string]any{"error": body},
		fmt.Sprintf("%s: %s", code, message),
	)
	result.IsError = true
	return result
}

// domainError renders a classified error. Internal failures keep their
// detail in the log only.
func domainError(err error) *mcp.CallToolResult {
	if err == nil {
		return toolError("internal_error", "unknown error")
	}
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error().Str("error", apperr.Format(err)).Msg("mcp tool failed")
	}
	return kindError(apperr.CodeOf(err), string(kind), apperr.ReasonOf(err))
}
