package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/logging"
	"github.com/formdepartment/capsule/internal/ops"
	"github.com/formdepartment/capsule/internal/suggest"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc    *ops.Service
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service, logger *zap.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logging.OrNop(logger)}
}

// GenerateRequest represents the arguments for suggest_generate and market_analysis.
type GenerateRequest struct {
	Params  suggest.Params `json:"params"`
	Refresh bool           `json:"refresh,omitempty"`
}

// ParseRequest represents the arguments for suggest_parse.
type ParseRequest struct {
	Text string   `json:"text"`
	Keys []string `json:"keys,omitempty"`
}

// SectionRequest represents the arguments for suggest_section.
type SectionRequest struct {
	Text  string `json:"text"`
	Label string `json:"label,omitempty"`
	Key   string `json:"key,omitempty"`
}

// ColorsRequest represents the arguments for suggest_colors.
type ColorsRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"`
}

// SanitizeRequest represents the arguments for suggest_sanitize.
type SanitizeRequest struct {
	Text string `json:"text"`
}

// ParamsRequest represents the arguments of tools that only take params.
type ParamsRequest struct {
	Params suggest.Params `json:"params"`
}

// PaletteRequest represents the arguments for suggest_palette.
type PaletteRequest struct {
	Params suggest.Params `json:"params"`
	Limit  int            `json:"limit,omitempty"`
}

// HandleGenerate handles the suggest_generate tool.
func (h *Handlers) HandleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.Suggest(ctx, ops.SuggestInput{Params: input.Params, Refresh: input.Refresh})
	if err != nil {
		return h.failure(req, err), nil
	}
	return successResult(result)
}

// HandleMarket handles the market_analysis tool.
func (h *Handlers) HandleMarket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.MarketAnalysis(ctx, ops.MarketInput{Params: input.Params, Refresh: input.Refresh})
	if err != nil {
		return h.failure(req, err), nil
	}
	return successResult(result)
}

// HandlePalette handles the suggest_palette tool.
func (h *Handlers) HandlePalette(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PaletteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.Palette(ctx, ops.PaletteInput{Params: input.Params, Limit: input.Limit})
	if err != nil {
		return h.failure(req, err), nil
	}
	return successResult(result)
}

// HandleQuestions handles the suggest_questions tool.
func (h *Handlers) HandleQuestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ParamsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.Questions(ctx, ops.QuestionsInput{Params: input.Params})
	if err != nil {
		return h.failure(req, err), nil
	}
	return successResult(result)
}

// HandlePurge handles the suggest_purge tool.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.svc.Purge(ctx)
	if err != nil {
		return h.failure(req, err), nil
	}
	return successResult(result)
}

// HandleParse handles the suggest_parse tool.
func (h *Handlers) HandleParse(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ParseRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Parse(ops.ParseInput{Text: input.Text, Keys: input.Keys})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSection handles the suggest_section tool.
func (h *Handlers) HandleSection(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SectionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Section(ops.SectionInput{Text: input.Text, Label: input.Label, Key: input.Key})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleColors handles the suggest_colors tool.
func (h *Handlers) HandleColors(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ColorsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Colors(ops.ColorsInput{Text: input.Text, Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSanitize handles the suggest_sanitize tool.
func (h *Handlers) HandleSanitize(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SanitizeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return successResult(ops.Sanitize(input.Text))
}

// HandleFingerprint handles the suggest_fingerprint tool.
func (h *Handlers) HandleFingerprint(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ParamsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Params.IsEmpty() {
		return errorResult(errors.NewInvalidRequest("params must describe the product")), nil
	}
	return successResult(ops.Fingerprint(input.Params))
}

// failure logs server-side failures of a tool call and converts err to a
// tool result.
func (h *Handlers) failure(req mcp.CallToolRequest, err error) *mcp.CallToolResult {
	if cErr, ok := errors.As(err); !ok || cErr.Status >= 500 {
		h.logger.Warn("tool call failed", zap.String("tool", req.Params.Name), zap.Error(err))
	}
	return errorResult(err)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal errors carry no details.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if cErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    cErr.Code,
			"message": cErr.Message,
			"status":  cErr.Status,
		}
		if cErr.Code != errors.ErrInternal && cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
