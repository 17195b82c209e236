package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComparisonRow is one reference product with the matching price from every competitor
type ComparisonRow struct {
	SKUName        string                         `json:"skuName"`
	Name           string                         `json:"name"`
	Brand          string                         `json:"brand"`
	RawSpecs       string                         `json:"rawSpecs"`
	Spec           string                         `json:"spec"`
	Occurrence     int                            `json:"occurrence"`
	ReferencePrice decimal.NullDecimal            `json:"referencePrice"`
	Prices         map[Source]decimal.NullDecimal `json:"prices"`
	Ply            map[Source]string              `json:"ply,omitempty"`
}

// HasCompetitorPrice reports whether any competitor column is populated
func (r *ComparisonRow) HasCompetitorPrice() bool {
	for _, p := range r.Prices {
		if p.Valid {
			return true
		}
	}
	return false
}

// BatchSummary counts what happened to one source's fragments
type BatchSummary struct {
	Source      Source         `json:"source"`
	FragmentsIn int            `json:"fragmentsIn"`
	RecordsOut  int            `json:"recordsOut"`
	Dropped     int            `json:"dropped"`
	DropReasons map[string]int `json:"dropReasons,omitempty"`
	FieldErrors map[string]int `json:"fieldErrors,omitempty"`
}

// RuleSuggestion proposes a name rule for a competitor name that matched nothing
type RuleSuggestion struct {
	Source        Source   `json:"source"`
	RawName       string   `json:"rawName"`
	Candidate     string   `json:"candidate"`
	Score         float64  `json:"score"`
	MatchedTokens []string `json:"matchedTokens,omitempty"`
}

// CompareRequest is the input of a comparison run
type CompareRequest struct {
	Reference   []RawFragment            `json:"reference,omitempty"`
	Competitors map[Source][]RawFragment `json:"competitors" binding:"required"`
	Save        bool                     `json:"save,omitempty"`
}

// ComparisonResult is the output of a comparison run
type ComparisonResult struct {
	Rows         []ComparisonRow  `json:"rows"`
	Sources      []Source         `json:"sources"`
	Summaries    []BatchSummary   `json:"summaries"`
	Suggestions  []RuleSuggestion `json:"suggestions,omitempty"`
	RulesVersion string           `json:"rulesVersion"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	SnapshotID   string           `json:"snapshotId,omitempty"`
	Source       string           `json:"source"` // "computed" or "cache"
}

// Snapshot is a saved comparison result
type Snapshot struct {
	ID           string          `json:"id"`
	TakenOn      string          `json:"takenOn"` // YYYY-MM-DD
	CreatedAt    time.Time       `json:"createdAt"`
	RulesVersion string          `json:"rulesVersion"`
	Sources      []Source        `json:"sources"`
	Rows         []ComparisonRow `json:"rows"`
	Summaries    []BatchSummary  `json:"summaries"`
}

// SnapshotInfo is the listing view of a snapshot
type SnapshotInfo struct {
	ID        string    `json:"id"`
	TakenOn   string    `json:"takenOn"`
	CreatedAt time.Time `json:"createdAt"`
	RowCount  int       `json:"rowCount"`
}
