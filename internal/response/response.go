// Copyright 2025 Joseph Cumines
//
// Package response builds the uniform tool result envelope.
//
// Every plugin returns a *ToolResult: an ordered list of content blocks plus
// an error flag. IsError=false means downstream steps may proceed.
package response

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// ToolResult represents a tool call result
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents a content item in a tool result
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// TextContent returns a text content block.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// ImageContent returns a base64 image content block.
func ImageContent(data []byte, mimeType string) Content {
	return Content{
		Type:     "image",
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}

// Text creates a successful ToolResult with one text block per argument.
func Text(texts ...string) *ToolResult {
	r := &ToolResult{Content: make([]Content, 0, len(texts))}
	for _, t := range texts {
		r.Content = append(r.Content, TextContent(t))
	}
	return r
}

// Textf creates a successful ToolResult with a formatted text block.
func Textf(format string, args ...any) *ToolResult {
	return Text(fmt.Sprintf(format, args...))
}

// Error creates a ToolResult with IsError=true and one text block per argument.
func Error(texts ...string) *ToolResult {
	r := Text(texts...)
	r.IsError = true
	return r
}

// Errorf creates an error ToolResult with a formatted message.
func Errorf(format string, args ...any) *ToolResult {
	return Error(fmt.Sprintf(format, args...))
}

// FromError renders err as an error envelope for tool.
func FromError(err error, tool string) *ToolResult {
	return Error(toolerr.Format(err, tool))
}

// Text returns all text blocks joined by newlines.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Append returns a copy of r with extra content blocks added at the end.
func (r *ToolResult) Append(blocks ...Content) *ToolResult {
	out := &ToolResult{IsError: r.IsError}
	out.Content = append(append(make([]Content, 0, len(r.Content)+len(blocks)), r.Content...), blocks...)
	return out
}

// Outcome is the semantic context for normalizing a command result.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Outcome struct {
	// Success is the primary line on success, without the marker.
	Success string
	// Failure is the summary line on failure, without the marker.
	Failure string
	// NextSteps, if set, is appended after the success line.
	NextSteps string
	// IncludeOutput appends the command's stdout after the success line.
	IncludeOutput bool
}

// FromExecution normalizes an executor.Result into an envelope.
//
// On failure the stderr text (if any) comes first, prefixed with a failure
// marker, followed by the failure summary. On success the summary comes
// first, optionally followed by the output and the next-steps hint.
func FromExecution(res *executor.Result, o Outcome) *ToolResult {
	if res == nil || !res.Success {
		var blocks []string
		if res != nil && strings.TrimSpace(res.Error) != "" {
			blocks = append(blocks, StderrLine(res.Error))
		}
		blocks = append(blocks, "❌ "+o.Failure)
		return Error(blocks...)
	}

	blocks := []string{"✅ " + o.Success}
	if o.IncludeOutput && strings.TrimSpace(res.Output) != "" {
		blocks = append(blocks, strings.TrimRight(res.Output, "\n"))
	}
	if o.NextSteps != "" {
		blocks = append(blocks, o.NextSteps)
	}
	return Text(blocks...)
}

// StderrLine formats captured stderr as a failure block.
func StderrLine(stderr string) string {
	return "❌ [stderr] " + strings.TrimRight(stderr, "\n")
}

// NextSteps formats the informational hint block that names follow-up tool
// calls. It has no effect on control flow.
func NextSteps(steps ...string) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Next Steps:")
	for i, s := range steps {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s)
	}
	return b.String()
}

// maxDisplayTextLen is the maximum length for text shown in result summaries.
// Longer text is truncated with "..." suffix.
const maxDisplayTextLen = 50

// Truncate shortens s to maxDisplayTextLen characters with a "..." suffix.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) > maxDisplayTextLen {
		return string(r[:maxDisplayTextLen]) + "..."
	}
	return s
}
