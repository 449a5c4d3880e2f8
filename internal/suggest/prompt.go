package suggest

import (
	"strings"
	"text/template"
)

var promptFuncs = template.FuncMap{
	"orDash": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "not specified"
		}
		return strings.TrimSpace(s)
	},
	"join": strings.Join,
}

var breakdownTemplate = template.Must(template.New("breakdown").Funcs(promptFuncs).Parse(
	`Act as a senior apparel product developer helping an independent brand plan one capsule product.

Product idea: {{orDash .Idea}}
Brand reference: {{orDash .BrandReference}}
Product type: {{orDash .ProductType}}
Category: {{orDash .Category}}
Key features: {{orDash .KeyFeatures}}
Target retail price: {{orDash .TargetPrice}}
Order quantity: {{orDash .Quantity}}
Material preference: {{orDash .MaterialPreference}}
Manufacturing preference: {{if .ManufacturingPreference}}{{join .ManufacturingPreference ", "}}{{else}}not specified{{end}}
{{- if .Answers}}

Fit questionnaire answers:
{{- range $question, $answer := .Answers}}
- {{$question}}: {{$answer}}
{{- end}}
{{- end}}

Answer in plain text. Start each section with its heading in double asterisks on its own line, using exactly these headings in this order:
{{range .Sections}}
**{{.}}**
{{- end}}

Under the color palette heading list four colors, one per line, as "Name (#RRGGBB)".
Keep every section concise and specific to this product.`))

var questionnaireTemplate = template.Must(template.New("questionnaire").Funcs(promptFuncs).Parse(
	`You are an apparel fit and fabric specialist. Write a short questionnaire that helps refine this product before sampling.

Product idea: {{orDash .Idea}}
Product type: {{orDash .ProductType}}
Key features: {{orDash .KeyFeatures}}
Target retail price: {{orDash .TargetPrice}}
Material preference: {{orDash .MaterialPreference}}

Return only a JSON array with exactly three objects, titled "Fit & Support", "Fabric & Performance" and "Adjustability & Comfort".
Each object has a "title" and a "questions" array of 2 to 4 items.
Each question has a "question" string, a "type" of "multiple-choice" or "text", and an "options" array of strings when the type is "multiple-choice".
Do not wrap the JSON in code fences or add commentary.`))

// breakdownData is the template input for BreakdownPrompt.
type breakdownData struct {
	Params
	Sections []string
}

// BreakdownPrompt renders the product breakdown prompt for p. The requested
// headings are the preferred labels of every known section.
func BreakdownPrompt(p Params) string {
	sections := make([]string, 0, len(sectionSpecs))
	for _, s := range sectionSpecs {
		sections = append(sections, s.labels[0])
	}
	return render(breakdownTemplate, breakdownData{Params: p, Sections: sections})
}

// QuestionnairePrompt renders the prompt asking for a fit questionnaire for p.
func QuestionnairePrompt(p Params) string {
	return render(questionnaireTemplate, p)
}

func render(t *template.Template, data any) string {
	var b strings.Builder
	// Templates are fixed and only read string fields, so Execute cannot fail.
	_ = t.Execute(&b, data)
	return b.String()
}
