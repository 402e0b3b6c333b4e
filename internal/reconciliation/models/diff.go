package models

import (
	"slices"

	id "actarchive/pkg/domain"
)

// Diff matches inventory keys against document keys by exact equality of
// all five fields. Repeated keys collapse to one entry per side.
func Diff(inventory, documents []id.ClassificationKey) (matched, missing, extra []id.ClassificationKey, summary Summary) {
	invSet, invDup := keySet(inventory)
	docSet, docDup := keySet(documents)

	matched = make([]id.ClassificationKey, 0)
	missing = make([]id.ClassificationKey, 0)
	extra = make([]id.ClassificationKey, 0)
	for k := range invSet {
		if _, ok := docSet[k]; ok {
			matched = append(matched, k)
		} else {
			missing = append(missing, k)
		}
	}
	for k := range docSet {
		if _, ok := invSet[k]; !ok {
			extra = append(extra, k)
		}
	}
	slices.SortFunc(matched, id.ClassificationKey.Compare)
	slices.SortFunc(missing, id.ClassificationKey.Compare)
	slices.SortFunc(extra, id.ClassificationKey.Compare)

	summary = Summary{
		TotalInventory:     len(invSet),
		TotalDocuments:     len(docSet),
		MatchedCount:       len(matched),
		MissingCount:       len(missing),
		ExtraCount:         len(extra),
		MatchRate:          MatchRate(len(matched), len(invSet)),
		DuplicateInventory: invDup,
		DuplicateDocuments: docDup,
	}
	return matched, missing, extra, summary
}

func keySet(keys []id.ClassificationKey) (map[id.ClassificationKey]struct{}, int) {
	set := make(map[id.ClassificationKey]struct{}, len(keys))
	duplicates := 0
	for _, k := range keys {
		if _, seen := set[k]; seen {
			duplicates++
			continue
		}
		set[k] = struct{}{}
	}
	return set, duplicates
}
