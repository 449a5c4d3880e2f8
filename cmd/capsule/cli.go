package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/backend"
	"github.com/formdepartment/capsule/internal/cache"
	"github.com/formdepartment/capsule/internal/config"
	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/genai"
	"github.com/formdepartment/capsule/internal/logging"
	"github.com/formdepartment/capsule/internal/mcp"
	"github.com/formdepartment/capsule/internal/ops"
	"github.com/formdepartment/capsule/internal/store"
	"github.com/formdepartment/capsule/internal/suggest"
	"github.com/formdepartment/capsule/internal/web"
)

// maxInputBytes bounds text read from stdin or --file.
const maxInputBytes = 1 << 20

// environment carries what commands share. The service is opened on first
// use so pure commands never touch the store or the generator.
type environment struct {
	cfg     *config.Config
	baseDir string
	logger  *zap.Logger
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer

	// gen replaces the configured generator when set.
	gen genai.Generator

	svc     *ops.Service
	backend store.Backend
}

func newEnvironment(cfg *config.Config, baseDir string, logger *zap.Logger) *environment {
	return &environment{
		cfg:     cfg,
		baseDir: baseDir,
		logger:  logging.OrNop(logger),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// service opens the store and generator once and returns the shared service.
func (e *environment) service(ctx context.Context) (*ops.Service, error) {
	if e.svc != nil {
		return e.svc, nil
	}

	b, err := store.Open(ctx, e.cfg, e.baseDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gen := e.gen
	if gen == nil {
		gen, err = genai.New(e.cfg)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("generator: %w", err)
		}
	}

	m := cache.NewManager(b, cache.WithTTL(e.cfg.CacheTTL()), cache.WithLogger(e.logger))
	e.backend = b
	e.svc = ops.NewService(m, gen, ops.Options{
		Timeout:      e.cfg.GenerationTimeout(),
		PaletteLimit: e.cfg.PaletteLimit,
		Logger:       e.logger,
	})
	return e.svc, nil
}

// Close releases the store, if one was opened.
func (e *environment) Close() {
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Warn("close store", zap.Error(err))
		}
		e.backend = nil
		e.svc = nil
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *environment) *cli.App {
	app := &cli.App{
		Name:    "capsule",
		Usage:   "Product breakdowns from AI replies",
		Version: Version,
		Commands: []*cli.Command{
			parseCmd(env),
			sectionCmd(env),
			colorsCmd(env),
			sanitizeCmd(env),
			fingerprintCmd(env),
			suggestCmd(env),
			marketCmd(env),
			paletteCmd(env),
			questionsCmd(env),
			purgeCmd(env),
			serveCmd(env),
			mcpCmd(env),
		},
		Writer:    env.stdout,
		ErrWriter: env.stderr,
		// Answers may contain commas.
		DisableSliceFlagSeparator: true,
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// Text commands

func fileFlag() cli.Flag {
	return &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read text from `FILE` instead of stdin"}
}

// parseCmd creates the parse command.
func parseCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "parse",
		Usage: "Split a model reply into breakdown sections (reads stdin)",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.StringFlag{Name: "keys", Aliases: []string{"k"}, Usage: "Comma-separated section keys (default: all)"},
		},
		Action: func(c *cli.Context) error {
			text, err := env.readInput(c)
			if err != nil {
				return env.outputError(err)
			}
			output, err := ops.Parse(ops.ParseInput{Text: text, Keys: splitList(c.String("keys"))})
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// sectionCmd creates the section command.
func sectionCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "section",
		Usage: "Extract one labeled section from a model reply (reads stdin)",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "Section label as written in the reply"},
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "Section key; every spelling of it is tried"},
		},
		Action: func(c *cli.Context) error {
			text, err := env.readInput(c)
			if err != nil {
				return env.outputError(err)
			}
			output, err := ops.Section(ops.SectionInput{Text: text, Label: c.String("label"), Key: c.String("key")})
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// colorsCmd creates the colors command.
func colorsCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "colors",
		Usage: "Extract named hex colors from text (reads stdin)",
		Flags: []cli.Flag{
			fileFlag(),
			&cli.IntFlag{Name: "limit", Usage: "Maximum colors to return (0 = no limit)"},
		},
		Action: func(c *cli.Context) error {
			text, err := env.readInput(c)
			if err != nil {
				return env.outputError(err)
			}
			output, err := ops.Colors(ops.ColorsInput{Text: text, Limit: c.Int("limit")})
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// sanitizeCmd creates the sanitize command.
func sanitizeCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "sanitize",
		Usage: "Strip separator artifacts from text (reads stdin)",
		Flags: []cli.Flag{fileFlag()},
		Action: func(c *cli.Context) error {
			text, err := env.readInput(c)
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(ops.Sanitize(text))
		},
	}
}

// Params commands

// paramsFlags are the product parameter flags shared by every command that
// takes params.
func paramsFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "params", Usage: "Product params as a JSON object; other param flags override its fields"},
		&cli.StringFlag{Name: "idea", Usage: "Product idea"},
		&cli.StringFlag{Name: "brand", Usage: "Brand reference"},
		&cli.StringFlag{Name: "product-type", Usage: "Product type"},
		&cli.StringFlag{Name: "target-price", Usage: "Target retail price"},
		&cli.StringFlag{Name: "quantity", Usage: "Order quantity"},
		&cli.StringFlag{Name: "category", Usage: "Product category"},
		&cli.StringFlag{Name: "features", Usage: "Key features"},
		&cli.StringFlag{Name: "material", Usage: "Material preference"},
		&cli.StringSliceFlag{Name: "manufacturing", Usage: "Manufacturing preference: usa|international (repeatable)"},
		&cli.StringSliceFlag{Name: "answer", Usage: "Questionnaire answer as QUESTION=ANSWER (repeatable)"},
	}
	return append(flags, extra...)
}

// paramsFromFlags builds product params from the --params JSON and the
// individual param flags.
func paramsFromFlags(c *cli.Context) (suggest.Params, error) {
	var p suggest.Params
	if raw := c.String("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return p, errors.NewInvalidRequest(fmt.Sprintf("invalid --params: %v", err))
		}
	}

	for flag, field := range map[string]*string{
		"idea":         &p.Idea,
		"brand":        &p.BrandReference,
		"product-type": &p.ProductType,
		"target-price": &p.TargetPrice,
		"quantity":     &p.Quantity,
		"category":     &p.Category,
		"features":     &p.KeyFeatures,
		"material":     &p.MaterialPreference,
	} {
		if c.IsSet(flag) {
			*field = c.String(flag)
		}
	}
	if c.IsSet("manufacturing") {
		p.ManufacturingPreference = c.StringSlice("manufacturing")
	}

	for _, a := range c.StringSlice("answer") {
		q, ans, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(q) == "" {
			return p, errors.NewInvalidRequest(fmt.Sprintf("answer %q must be QUESTION=ANSWER", a))
		}
		if p.Answers == nil {
			p.Answers = make(map[string]string)
		}
		p.Answers[strings.TrimSpace(q)] = strings.TrimSpace(ans)
	}
	return p, nil
}

// fingerprintCmd creates the fingerprint command.
func fingerprintCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "fingerprint",
		Usage: "Print the cache fingerprint of product params",
		Flags: paramsFlags(),
		Action: func(c *cli.Context) error {
			p, err := paramsFromFlags(c)
			if err != nil {
				return env.outputError(err)
			}
			if p.IsEmpty() {
				return env.outputError(errors.NewInvalidRequest("no product params given"))
			}
			return env.outputJSON(ops.Fingerprint(p))
		},
	}
}

// suggestCmd creates the suggest command.
func suggestCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Get the product breakdown for the params",
		Flags: paramsFlags(
			&cli.BoolFlag{Name: "refresh", Usage: "Drop cached entries before looking up"},
		),
		Action: func(c *cli.Context) error {
			p, err := paramsFromFlags(c)
			if err != nil {
				return env.outputError(err)
			}
			svc, err := env.service(c.Context)
			if err != nil {
				return env.outputError(errors.NewInternal(err))
			}
			output, err := svc.Suggest(c.Context, ops.SuggestInput{Params: p, Refresh: c.Bool("refresh")})
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// marketCmd creates the market command.
func marketCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "market",
		Usage: "Get the market and financial analysis for the params",
		Flags: paramsFlags(
			&cli.BoolFlag{Name: "refresh", Usage: "Drop cached entries before looking up"},
		),
		Action: func(c *cli.Context) error {
			p, err := paramsFromFlags(c)
			if err != nil {
				return env.outputError(err)
			}
			svc, err := env.service(c.Context)
			if err != nil {
				return env.outputError(errors.NewInternal(err))
			}
			output, err := svc.MarketAnalysis(c.Context, ops.MarketInput{Params: p, Refresh: c.Bool("refresh")})
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// paletteCmd creates the palette command.
func paletteCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "palette",
		Usage: "Get the color palette swatches for the params",
		Flags: paramsFlags(
			&cli.IntFlag{Name: "limit", Usage: "Number of swatches, 1-24 (default: palette_limit)"},
		),
		Action: func(c *cli.Context) error {
			p, err := paramsFromFlags(c)
			if err != nil {
				return env.outputError(err)
			}
			svc, err := env.service(c.Context)
			if err != nil {
				return env.outputError(errors.NewInternal(err))
			}
			output, err := svc.Palette(c.Context, ops.PaletteInput{Params: p, Limit: c.Int("limit")})
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// questionsCmd creates the questions command.
func questionsCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "questions",
		Usage: "Generate a follow-up questionnaire for the params",
		Flags: paramsFlags(),
		Action: func(c *cli.Context) error {
			p, err := paramsFromFlags(c)
			if err != nil {
				return env.outputError(err)
			}
			svc, err := env.service(c.Context)
			if err != nil {
				return env.outputError(errors.NewInternal(err))
			}
			output, err := svc.Questions(c.Context, ops.QuestionsInput{Params: p})
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete expired and malformed cache entries",
		Action: func(c *cli.Context) error {
			svc, err := env.service(c.Context)
			if err != nil {
				return env.outputError(errors.NewInternal(err))
			}
			output, err := svc.Purge(c.Context)
			if err != nil {
				return env.outputError(err)
			}
			return env.outputJSON(output)
		},
	}
}

// Servers

// serveCmd creates the serve command.
func serveCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default: addr from config)"},
		},
		Action: func(c *cli.Context) error {
			if addr := c.String("addr"); addr != "" {
				env.cfg.Addr = addr
			}

			svc, err := env.service(c.Context)
			if err != nil {
				return err
			}

			deps := web.Deps{
				Config:  env.cfg,
				Service: svc,
				Logger:  env.logger,
				Version: Version,
			}

			if env.cfg.OpenAIAPIKey != "" {
				completer, err := genai.NewOpenAIClient(genai.OpenAIOptionsFrom(env.cfg))
				if err != nil {
					return err
				}
				deps.Completer = completer
			} else if env.cfg.Generator == config.GeneratorProxy {
				env.logger.Warn("CAPSULE_OPENAI_API_KEY is not set; /api/openai is disabled")
			}

			if env.cfg.BackendURL != "" {
				client, err := backend.NewClient(env.cfg.BackendURL, nil)
				if err != nil {
					return err
				}
				deps.Backend = client
			}

			srv, err := web.NewServer(deps)
			if err != nil {
				return err
			}
			return web.Run(srv, env.logger)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			svc, err := env.service(c.Context)
			if err != nil {
				return err
			}
			return mcp.Run(svc, env.cfg, Version, env.logger)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func (e *environment) outputJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints err as a JSON error object and exits with status 1.
func (e *environment) outputError(err error) error {
	cErr, ok := errors.As(err)
	if !ok {
		cErr = errors.NewInternal(err)
	}
	payload := map[string]any{
		"error": map[string]any{
			"code":    cErr.Code,
			"message": cErr.Message,
			"status":  cErr.Status,
		},
	}
	enc := json.NewEncoder(e.stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
	return cli.Exit("", 1)
}

// readInput reads the command's text from --file or stdin, up to maxInputBytes.
func (e *environment) readInput(c *cli.Context) (string, error) {
	var r io.Reader = e.stdin
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("open %s: %v", path, err))
		}
		defer f.Close()
		r = f
	} else if f, ok := r.(*os.File); ok && !hasPipedData(f) {
		return "", errors.NewInvalidRequest("text must be piped via stdin or given with --file")
	}
	return readLimited(r, maxInputBytes)
}

// readLimited reads all of r, failing when it holds more than limit bytes.
func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return string(data), nil
}

// hasPipedData returns true if f is not a terminal.
func hasPipedData(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// splitList splits a comma-separated string, dropping empty items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
