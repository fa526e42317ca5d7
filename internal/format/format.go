package format

import (
	"fmt"
	"sort"

	"github.com/plantwise-cloud/pestsearch/internal/domain/hit"
)

// Evidence is one field-level match surfaced for explainability.
type Evidence struct {
	Field   string  `json:"field"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt,omitempty"`
	SubItem string  `json:"sub_item,omitempty"`
}

// Section is one titled body block of a result.
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Image is a media attachment surfaced with a result.
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Result is one ranked entry of the response.
type Result struct {
	Title        string             `json:"title"`
	URL          string             `json:"url"`
	Source       string             `json:"source"`
	Score        float64            `json:"score"`
	CategoryScores map[string]float64 `json:"category_scores,omitempty"`
	BodySections []Section          `json:"body_sections,omitempty"`
	Images       []Image            `json:"images,omitempty"`
	Evidence     []Evidence         `json:"evidence,omitempty"`
}

// Debug echoes the executed queries when the caller requested a debug run.
type Debug struct {
	PrimaryQuery string   `json:"primary_query"`
	Refinements  []string `json:"refinements,omitempty"`
	DamageQuery  string   `json:"damage_query,omitempty"`
	CannedQuery  string   `json:"canned_query,omitempty"`
}

// Response is the outbound contract to the dialogue layer.
type Response struct {
	SummaryText string   `json:"summary_text"`
	NoResults   bool     `json:"no_results"`
	Results     []Result `json:"results"`
	Debug       *Debug   `json:"debug,omitempty"`
}

// maxExcerpt bounds evidence excerpts to keep responses chat-sized.
const maxExcerpt = 240

// Formatter turns a ranked, filtered hit list into the structured response.
type Formatter struct{}

// New creates a formatter.
func New() *Formatter { return &Formatter{} }

// Format builds the response. A nil debug echo keeps the response lean.
func (f *Formatter) Format(fused []hit.FusedResult, debug *Debug) Response {
	if len(fused) == 0 {
		return Response{
			SummaryText: "No matching entries found. Try describing the plant and the damage you see.",
			NoResults:   true,
			Results:     []Result{},
			Debug:       debug,
		}
	}

	results := make([]Result, 0, len(fused))
	for _, fr := range fused {
		results = append(results, f.formatResult(fr))
	}

	summary := fmt.Sprintf("Found %d possible match", len(results))
	if len(results) != 1 {
		summary += "es"
	}

	return Response{
		SummaryText: summary,
		Results:     results,
		Debug:       debug,
	}
}

func (f *Formatter) formatResult(fr hit.FusedResult) Result {
	r := Result{
		Title:  fr.Doc.Name,
		URL:    fr.Doc.URL,
		Source: string(fr.Doc.Source),
		Score:  fr.WeightedScore,
	}

	if len(fr.CategoryScores) > 0 {
		r.CategoryScores = make(map[string]float64, len(fr.CategoryScores))
		for cat, s := range fr.CategoryScores {
			r.CategoryScores[string(cat)] = s
		}
	}

	fields := make([]string, 0, len(fr.Doc.Fields))
	for field := range fr.Doc.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if text := fr.Doc.Fields[field]; text != "" {
			r.BodySections = append(r.BodySections, Section{Title: field, Text: text})
		}
	}

	for _, m := range fr.Doc.Media {
		if m.URL == "" {
			continue
		}
		r.Images = append(r.Images, Image{URL: m.URL, Caption: m.Caption})
	}

	for _, ev := range fr.Evidence {
		e := Evidence{
			Field:   ev.Field,
			Score:   ev.Score,
			Excerpt: excerpt(ev.Doc.Fields[ev.Field]),
		}
		if ev.Sub != nil {
			e.SubItem = ev.Sub.Path + "/" + ev.Sub.ID
		}
		r.Evidence = append(r.Evidence, e)
	}

	return r
}

func excerpt(text string) string {
	if len(text) <= maxExcerpt {
		return text
	}
	return text[:maxExcerpt] + "…"
}
