package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meetingintel/server/internal/domain"
)

func argString(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

// argStringPtr distinguishes an absent argument from an empty one for
// partial updates.
func argStringPtr(args map[string]any, key string) *string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	value, ok := raw.(string)
	if !ok {
		return nil
	}
	return &value
}

// argInt reads a numeric argument. JSON numbers arrive as float64.
func argInt(args map[string]any, key string) int {
	switch value := args[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case string:
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func argIDPtr(args map[string]any, key string) *int64 {
	if _, ok := args[key]; !ok {
		return nil
	}
	id := int64(argInt(args, key))
	if id == 0 {
		return nil
	}
	return &id
}

func requiredID(args map[string]any, key string) (int64, error) {
	id := int64(argInt(args, key))
	if id <= 0 {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, key)
	}
	return id, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var cleaned []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func toolJSON(payload any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError("RESULT_ERROR: failed to encode result"), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

// toolError maps domain failures onto the coded messages tool callers parse.
func toolError(err error) *mcp.CallToolResult {
	code := "DATABASE_ERROR"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code = "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrUnauthenticated):
		code = "UNAUTHENTICATED"
	case errors.Is(err, domain.ErrForbidden):
		code = "FORBIDDEN"
	case errors.Is(err, domain.ErrNotFound):
		code = "NOT_FOUND"
	case errors.Is(err, domain.ErrUnavailable):
		code = "UNAVAILABLE"
	}
	return mcp.NewToolResultError(code + ": " + err.Error())
}
