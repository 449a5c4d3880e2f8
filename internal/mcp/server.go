package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/config"
	"github.com/formdepartment/capsule/internal/logging"
	"github.com/formdepartment/capsule/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"suggest", "market"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"suggest_generate": {
		def:     generateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerate },
	},
	"suggest_parse": {
		def:     parseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleParse },
	},
	"suggest_section": {
		def:     sectionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSection },
	},
	"suggest_colors": {
		def:     colorsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleColors },
	},
	"suggest_sanitize": {
		def:     sanitizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSanitize },
	},
	"suggest_fingerprint": {
		def:     fingerprintToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFingerprint },
	},
	"suggest_palette": {
		def:     paletteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePalette },
	},
	"suggest_questions": {
		def:     questionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQuestions },
	},
	"suggest_purge": {
		def:     purgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
	"market_analysis": {
		def:     marketToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMarket },
	},
}

const paramsDescription = "Product parameters: idea, brand_reference, product_type, target_price, " +
	"quantity, category, key_features, material_preference, manufacturing_preference (array of " +
	"\"usa\"/\"international\") and answers (question to answer map)."

var (
	generateToolDef = mcp.NewTool("suggest_generate",
		mcp.WithDescription("Return the full product breakdown for the given parameters. Cached answers are reused until they expire."),
		mcp.WithObject("params", mcp.Required(), mcp.Description(paramsDescription)),
		mcp.WithBoolean("refresh", mcp.Description("Drop cached entries for these parameters before looking up.")),
	)

	parseToolDef = mcp.NewTool("suggest_parse",
		mcp.WithDescription("Split a model reply into the known breakdown sections."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The model reply.")),
		mcp.WithArray("keys", mcp.WithStringItems(), mcp.Description("Section keys to extract. Default: all.")),
	)

	sectionToolDef = mcp.NewTool("suggest_section",
		mcp.WithDescription("Extract the body of one labeled section from a model reply. Give either label or key."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The model reply.")),
		mcp.WithString("label", mcp.Description("Section label as written in the reply, e.g. \"Suggested Materials\".")),
		mcp.WithString("key", mcp.Description("Section key, e.g. \"materials\". All spellings of the key are tried.")),
	)

	colorsToolDef = mcp.NewTool("suggest_colors",
		mcp.WithDescription("Extract named hex colors from text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text mentioning hex colors.")),
		mcp.WithNumber("limit", mcp.Description("Maximum colors to return. 0 means no limit.")),
	)

	sanitizeToolDef = mcp.NewTool("suggest_sanitize",
		mcp.WithDescription("Strip separator artifacts from a model reply."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to clean.")),
	)

	fingerprintToolDef = mcp.NewTool("suggest_fingerprint",
		mcp.WithDescription("Compute the cache fingerprint of product parameters and the store keys it addresses."),
		mcp.WithObject("params", mcp.Required(), mcp.Description(paramsDescription)),
	)

	paletteToolDef = mcp.NewTool("suggest_palette",
		mcp.WithDescription("Return the color palette swatches of the product breakdown."),
		mcp.WithObject("params", mcp.Required(), mcp.Description(paramsDescription)),
		mcp.WithNumber("limit", mcp.Description("Number of swatches, 1-24. Default: the configured palette limit.")),
	)

	questionsToolDef = mcp.NewTool("suggest_questions",
		mcp.WithDescription("Generate a follow-up questionnaire for the product parameters."),
		mcp.WithObject("params", mcp.Required(), mcp.Description(paramsDescription)),
	)

	purgeToolDef = mcp.NewTool("suggest_purge",
		mcp.WithDescription("Permanently delete expired and malformed cache entries."),
	)

	marketToolDef = mcp.NewTool("market_analysis",
		mcp.WithDescription("Return the market sections (comparables, consumer insight, margins, pricing) of the product breakdown."),
		mcp.WithObject("params", mcp.Required(), mcp.Description(paramsDescription)),
		mcp.WithBoolean("refresh", mcp.Description("Drop cached entries for these parameters before looking up.")),
	)
)

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "market_analysis" → "market").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with the capsule tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(svc *ops.Service, cfg *config.Config, version string, logger *zap.Logger) *server.MCPServer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger = logging.OrNop(logger)

	s := server.NewMCPServer(
		"capsule",
		version,
		server.WithToolCapabilities(true),
	)

	if unknown := ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}
	if unknown := ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
	}

	h := NewHandlers(svc, logger)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(svc *ops.Service, cfg *config.Config, version string, logger *zap.Logger) error {
	s := NewServer(svc, cfg, version, logger)
	return server.ServeStdio(s)
}
