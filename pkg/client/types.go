package pestsearch

// Term is one structured entity extracted by the dialogue layer.
type Term struct {
	Role       string `json:"role"`
	EntityType int    `json:"entity_type"`
	Value      string `json:"value"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	ProblemText      string   `json:"problem_text"`
	DamageText       string   `json:"damage_text,omitempty"`
	StructuredTerms  [][]Term `json:"structured_terms,omitempty"`
	PriorRefinements []string `json:"prior_refinements,omitempty"`
	Debug            bool     `json:"debug,omitempty"`
}

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
	Title          string             `json:"title"`
	URL            string             `json:"url"`
	Source         string             `json:"source"`
	Score          float64            `json:"score"`
	CategoryScores map[string]float64 `json:"category_scores,omitempty"`
	BodySections   []Section          `json:"body_sections,omitempty"`
	Images         []Image            `json:"images,omitempty"`
	Evidence       []Evidence         `json:"evidence,omitempty"`
}

// Debug echoes the executed queries when Debug was set on the request.
type Debug struct {
	PrimaryQuery string   `json:"primary_query"`
	Refinements  []string `json:"refinements,omitempty"`
	DamageQuery  string   `json:"damage_query,omitempty"`
	CannedQuery  string   `json:"canned_query,omitempty"`
}

// QueryResponse is the body of a successful query.
type QueryResponse struct {
	SummaryText string   `json:"summary_text"`
	NoResults   bool     `json:"no_results"`
	Results     []Result `json:"results"`
	Debug       *Debug   `json:"debug,omitempty"`
}

// HealthReport mirrors GET /healthz.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
