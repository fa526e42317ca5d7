package document

import "strings"

// Source identifies which knowledge-base collection a document was ingested from.
type Source string

const (
	// SourceCommunity is user-contributed Q&A content (lower trust).
	SourceCommunity Source = "community-answer"
	// SourceReference is curated reference material.
	SourceReference Source = "reference-note"
	// SourceDisease is the disease/pest item catalog.
	SourceDisease Source = "disease-item"
)

// Sources lists all known source kinds in a fixed order.
var Sources = []Source{SourceDisease, SourceReference, SourceCommunity}

// Valid reports whether s is a known source kind.
func (s Source) Valid() bool {
	switch s {
	case SourceCommunity, SourceReference, SourceDisease:
		return true
	}
	return false
}

// Category groups document fields that share one scoring role.
type Category string

const (
	// CategoryTopical covers general description, identification, life-cycle
	// and management fields, matched against the primary query vector.
	CategoryTopical Category = "topical"
	// CategoryName covers direct entity-name fields.
	CategoryName Category = "name"
	// CategoryDamage covers damage-description fields, matched only against
	// a damage vector when the conversation supplied damage details.
	CategoryDamage Category = "damage"
)

// Categories lists all categories in fusion order.
var Categories = []Category{CategoryTopical, CategoryName, CategoryDamage}

// fieldTable maps each source kind to the fields backing each category.
// Source collections have heterogeneous shapes; this table is the single
// place that knows which field plays which scoring role per kind.
var fieldTable = map[Source]map[Category][]string{
	SourceDisease: {
		CategoryTopical: {"description", "identification", "lifecycle", "management"},
		CategoryName:    {"name", "aliases"},
		CategoryDamage:  {"damage"},
	},
	SourceReference: {
		CategoryTopical: {"body", "summary"},
		CategoryName:    {"title"},
		CategoryDamage:  {"symptoms"},
	},
	SourceCommunity: {
		CategoryTopical: {"question", "answer"},
		CategoryName:    {"subject"},
		CategoryDamage:  {},
	},
}

// FieldsFor returns the field names backing a category for a source kind.
// Unknown sources or categories yield nil (no searches issued).
func FieldsFor(s Source, c Category) []string {
	byCat, ok := fieldTable[s]
	if !ok {
		return nil
	}
	return byCat[c]
}

// NestedPaths lists the nested sub-item collections a source embeds per item.
func NestedPaths(s Source) []string {
	switch s {
	case SourceDisease:
		return []string{"media"}
	case SourceCommunity:
		return []string{"turns"}
	}
	return nil
}

// Media is an image or video attachment with its embedded caption.
type Media struct {
	Kind    string
	URL     string
	Caption string
}

// Section is an independently embedded nested sub-item, e.g. a Q&A turn
// or a linked article.
type Section struct {
	ID    string
	Title string
	Text  string
}

// Document is one logical knowledge-base entry as returned by the store.
// Read-only during serving; created by the offline ingest batch.
type Document struct {
	ID       string
	Source   Source
	Name     string
	URL      string
	CrossRef string // cross-source reference id established at ingest, optional
	Fields   map[string]string
	Media    []Media
	Sections []Section
}

// CanonicalKey identifies the real-world entry behind a document. Index ids
// differ per source collection, so identity is the ingest-time cross-reference
// when present, else the lowercased name plus source kind.
func (d Document) CanonicalKey() string {
	if d.CrossRef != "" {
		return d.CrossRef
	}
	return strings.ToLower(strings.TrimSpace(d.Name)) + "|" + string(d.Source)
}
