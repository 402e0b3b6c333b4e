// Package models holds the reconciliation reports and the two algorithms
// that produce them: the key-exact Diff and the count-based BuildTree.
package models

import (
	"math"
	"time"

	id "actarchive/pkg/domain"
)

// ApproximationCountBased labels trees whose per-node matched/missing/extra
// are derived from counts rather than from key equality.
const ApproximationCountBased = "count_based"

// Summary is the headline of a comparison.
//
// MatchedCount+MissingCount == TotalInventory and
// MatchedCount+ExtraCount == TotalDocuments. Totals count distinct keys;
// repeated keys on either side are reported separately.
type Summary struct {
	TotalInventory     int     `json:"total_inventory"`
	TotalDocuments     int     `json:"total_documents"`
	MatchedCount       int     `json:"matched_count"`
	MissingCount       int     `json:"missing_count"`
	ExtraCount         int     `json:"extra_count"`
	MatchRate          float64 `json:"match_rate"`
	DuplicateInventory int     `json:"duplicate_inventory"`
	DuplicateDocuments int     `json:"duplicate_documents"`
}

// ComparisonResult is the key-exact diff of a batch against stored
// documents. Lists are sorted by key.
type ComparisonResult struct {
	BatchID     id.BatchID             `json:"batch_id"`
	Filters     id.KeyFilter           `json:"filters"`
	Matched     []id.ClassificationKey `json:"matched"`
	Missing     []id.ClassificationKey `json:"missing"`
	Extra       []id.ClassificationKey `json:"extra"`
	Summary     Summary                `json:"summary"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Stats are the counters carried by every tree node.
type Stats struct {
	InventoryCount int     `json:"inventory_count"`
	ActualCount    int     `json:"actual_count"`
	Matched        int     `json:"matched"`
	Missing        int     `json:"missing"`
	Extra          int     `json:"extra"`
	MatchRate      float64 `json:"match_rate"`
}

// Node is one level of the tree. Children is keyed by the next level's
// value: registre type under a bureau, year under a type, registre number
// under a year. Registre-number nodes are leaves.
type Node struct {
	Stats
	Children map[string]*Node `json:"children,omitempty"`
}

// Tree is bureau → registre type → year → registre number.
type Tree struct {
	BatchID       id.BatchID       `json:"batch_id"`
	Filters       id.KeyFilter     `json:"filters"`
	Approximation string           `json:"approximation"`
	Summary       Stats            `json:"summary"`
	Bureaux       map[string]*Node `json:"bureaux"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// MatchRate is matched/total as a percentage rounded to two decimals, and 0
// when total is 0.
func MatchRate(matched, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(matched) / float64(total) * 100
	return math.Round(rate*100) / 100
}
