package web

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/backend"
	"github.com/formdepartment/capsule/internal/config"
	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/genai"
	"github.com/formdepartment/capsule/internal/metrics"
	"github.com/formdepartment/capsule/internal/ops"
	"github.com/formdepartment/capsule/internal/suggest"
)

const (
	answerPrefix        = "answer."
	maxCompletionBody   = 1 << 20
	missingPromptError  = "Missing prompt in request body"
	unconfiguredMessage = "text generation is not configured"
)

// Handlers contains HTTP route handlers.
type Handlers struct {
	cfg       *config.Config
	svc       *ops.Service
	completer genai.Generator
	backend   *backend.Client
	renderer  *Renderer
	logger    *zap.Logger
}

// HandleWizard handles GET /wizard: the parameter form, plus the fit
// questionnaire when questions=1.
func (h *Handlers) HandleWizard(w http.ResponseWriter, r *http.Request) {
	p := paramsFromQuery(r.URL.Query())
	data := WizardPageData{
		PageData: h.renderer.page("Product wizard", "wizard"),
		Params:   p,
		Query:    encodeQuery(r, p),
	}

	if parseBoolParam(r, "questions") {
		out, err := h.svc.Questions(r.Context(), ops.QuestionsInput{Params: p})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		if wantsJSON(r) {
			renderJSON(w, http.StatusOK, out)
			return
		}
		data.Categories = out.Categories
	}

	h.renderer.renderPage(w, r, "wizard", data)
}

// HandleSuggestions handles GET /suggestions: the product breakdown.
func (h *Handlers) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	access, ok := h.gate(w, r, "suggestions")
	if !ok {
		return
	}

	p := paramsFromQuery(r.URL.Query())
	out, err := h.svc.Suggest(r.Context(), ops.SuggestInput{Params: p, Refresh: parseBoolParam(r, "refresh")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	colors := suggest.ExtractColors(out.Sections.ColorPalette)
	if limit := h.cfg.PaletteLimit; limit > 0 && len(colors) > limit {
		colors = colors[:limit]
	}

	h.renderer.renderPage(w, r, "suggestions", RecordPageData{
		PageData:    h.renderer.page("Product breakdown", "suggestions"),
		Fingerprint: out.Fingerprint,
		Source:      string(out.Source),
		Cards:       cards(out.Sections, suggest.BreakdownKeys...),
		Colors:      colors,
		Query:       encodeQuery(r, p),
		Access:      access,
	})
}

// HandleMarket handles GET /market: the market and financial analysis.
func (h *Handlers) HandleMarket(w http.ResponseWriter, r *http.Request) {
	access, ok := h.gate(w, r, "market")
	if !ok {
		return
	}

	p := paramsFromQuery(r.URL.Query())
	out, err := h.svc.MarketAnalysis(r.Context(), ops.MarketInput{Params: p, Refresh: parseBoolParam(r, "refresh")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	h.renderer.renderPage(w, r, "market", RecordPageData{
		PageData:    h.renderer.page("Market & financials", "market"),
		Fingerprint: out.Fingerprint,
		Source:      string(out.Source),
		Cards:       cards(out.Sections, suggest.MarketKeys...),
		Query:       encodeQuery(r, p),
		Access:      access,
	})
}

// HandlePalette handles GET /palette: color swatches for the breakdown.
func (h *Handlers) HandlePalette(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate(w, r, "palette"); !ok {
		return
	}

	p := paramsFromQuery(r.URL.Query())
	out, err := h.svc.Palette(r.Context(), ops.PaletteInput{Params: p, Limit: parseIntParam(r, "limit", 0)})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	h.renderer.renderPage(w, r, "palette", PalettePageData{
		PageData:    h.renderer.page("Color palette", "palette"),
		Fingerprint: out.Fingerprint,
		Colors:      out.Colors,
		Query:       encodeQuery(r, p),
	})
}

// HandleCompletion handles POST /api/openai: {prompt} in, completion choices out.
func (h *Handlers) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	var req genai.CompletionRequest
	body := http.MaxBytesReader(w, r.Body, maxCompletionBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": missingPromptError})
		return
	}
	if h.completer == nil {
		renderJSON(w, http.StatusServiceUnavailable, map[string]string{"error": unconfiguredMessage})
		return
	}

	ctx := r.Context()
	if timeout := h.cfg.GenerationTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := h.completer.Generate(ctx, req.Prompt)
	metrics.RecordGeneration("proxy", err, time.Since(start))
	if err != nil {
		loggerFrom(r.Context(), h.logger).Warn("completion failed", zap.Error(err))
		renderJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	renderJSON(w, http.StatusOK, genai.NewCompletionResponse(content))
}

// HandleAdmin handles GET /admin: subscriber metrics and search.
func (h *Handlers) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("backend_url is not configured"))
		return
	}

	token := r.URL.Query().Get("token")
	search := r.URL.Query().Get("q")
	data := AdminPageData{
		PageData: h.renderer.page("Admin dashboard", "admin"),
		Token:    token,
		Search:   search,
	}
	if token == "" {
		h.renderer.renderPage(w, r, "admin", data)
		return
	}

	subs, err := h.backend.Dashboard(r.Context(), token)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	data.Loaded = true
	data.Metrics = backend.Summarize(subs, time.Now())
	data.Subscribers = backend.Filter(subs, search)

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"metrics": data.Metrics,
			"users":   data.Subscribers,
		})
		return
	}
	h.renderer.renderPage(w, r, "admin", data)
}

// HandlePurge handles POST /cache/purge: removes expired and malformed entries.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	result, err := h.svc.Purge(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(result.Message + "\n"))
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.renderer.version,
	})
}

// gate runs the backend access check for page. It writes the refusal and
// returns false when the visit may not proceed. Without a backend every
// visit proceeds.
func (h *Handlers) gate(w http.ResponseWriter, r *http.Request, page string) (*backend.AccessResult, bool) {
	if h.backend == nil {
		return nil, true
	}

	id := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if id == "" {
		h.renderer.renderError(w, r, errors.NewAccessDenied("sign in to continue", "/account/login"))
		return nil, false
	}

	res, err := h.backend.CheckAccess(r.Context(), id, page)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return nil, false
	}
	if !res.Granted() {
		loggerFrom(r.Context(), h.logger).Info("access refused",
			zap.String("page", page), zap.String("reason", res.Reason))
		h.renderer.renderError(w, r, errors.NewAccessDenied(denialMessage(res), res.Redirect))
		return nil, false
	}
	return &res, true
}

// denialMessage returns the backend's message, or a readable form of its reason.
func denialMessage(res backend.AccessResult) string {
	if res.Message != "" {
		return res.Message
	}
	switch res.Reason {
	case "no_active_subscription":
		return "an active subscription is required"
	case "tier1_exhausted":
		return "no uses left on your plan"
	case "not_found":
		return "customer not found"
	}
	return "access denied"
}

// paramsFromQuery reads wizard parameters. Questionnaire answers use
// "answer.<question>" keys.
func paramsFromQuery(q url.Values) suggest.Params {
	p := suggest.Params{
		Idea:               q.Get("idea"),
		BrandReference:     q.Get("brand_reference"),
		ProductType:        q.Get("product_type"),
		TargetPrice:        q.Get("target_price"),
		Quantity:           q.Get("quantity"),
		Category:           q.Get("category"),
		KeyFeatures:        q.Get("key_features"),
		MaterialPreference: q.Get("material_preference"),
	}
	for _, m := range q["manufacturing"] {
		if m = strings.TrimSpace(m); m != "" {
			p.ManufacturingPreference = append(p.ManufacturingPreference, m)
		}
	}
	for k, v := range q {
		question, ok := strings.CutPrefix(k, answerPrefix)
		if !ok || question == "" || len(v) == 0 || strings.TrimSpace(v[0]) == "" {
			continue
		}
		if p.Answers == nil {
			p.Answers = map[string]string{}
		}
		p.Answers[question] = v[0]
	}
	return p
}

// encodeQuery is the inverse of paramsFromQuery, carrying customer_id along
// so links between gated pages keep working.
func encodeQuery(r *http.Request, p suggest.Params) template.URL {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("idea", p.Idea)
	set("brand_reference", p.BrandReference)
	set("product_type", p.ProductType)
	set("target_price", p.TargetPrice)
	set("quantity", p.Quantity)
	set("category", p.Category)
	set("key_features", p.KeyFeatures)
	set("material_preference", p.MaterialPreference)
	for _, m := range p.ManufacturingPreference {
		q.Add("manufacturing", m)
	}
	questions := make([]string, 0, len(p.Answers))
	for k := range p.Answers {
		questions = append(questions, k)
	}
	sort.Strings(questions)
	for _, k := range questions {
		q.Set(answerPrefix+k, p.Answers[k])
	}
	set("customer_id", r.URL.Query().Get("customer_id"))
	// Encode escapes every value, so the result is safe in an href.
	return template.URL(q.Encode())
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
