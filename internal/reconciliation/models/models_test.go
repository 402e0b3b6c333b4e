package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "actarchive/pkg/domain"
)

func key(bureau, registreType string, year int, registre, acte string) id.ClassificationKey {
	return id.ClassificationKey{Bureau: bureau, RegistreType: registreType, Year: year, RegistreNumber: registre, ActeNumber: acte}
}

func TestDiffScenarioC(t *testing.T) {
	inventory := []id.ClassificationKey{
		key("Anfa", "N", 2019, "12", "1"),
		key("Anfa", "N", 2019, "12", "2"),
		key("Anfa", "N", 2019, "12", "3"),
	}
	documents := []id.ClassificationKey{
		key("Anfa", "N", 2019, "12", "2"),
		key("Anfa", "N", 2019, "12", "1"),
	}

	matched, missing, extra, summary := Diff(inventory, documents)

	require.Len(t, matched, 2)
	require.Len(t, missing, 1)
	assert.Empty(t, extra)
	assert.Equal(t, "1", matched[0].ActeNumber)
	assert.Equal(t, "3", missing[0].ActeNumber)
	assert.Equal(t, 66.67, summary.MatchRate)
}

func TestDiffInvariants(t *testing.T) {
	tests := []struct {
		name      string
		inventory []id.ClassificationKey
		documents []id.ClassificationKey
	}{
		{name: "both empty"},
		{name: "no inventory", documents: []id.ClassificationKey{key("Anfa", "N", 2019, "1", "1")}},
		{name: "no documents", inventory: []id.ClassificationKey{key("Anfa", "N", 2019, "1", "1")}},
		{
			name: "partial overlap with duplicates",
			inventory: []id.ClassificationKey{
				key("Anfa", "N", 2019, "1", "1"), key("Anfa", "N", 2019, "1", "1"), key("Anfa", "D", 2019, "1", "2"),
			},
			documents: []id.ClassificationKey{
				key("Anfa", "N", 2019, "1", "1"), key("Maarif", "N", 2019, "1", "9"),
			},
		},
		{
			name:      "year differs",
			inventory: []id.ClassificationKey{key("Anfa", "N", 2019, "1", "1")},
			documents: []id.ClassificationKey{key("Anfa", "N", 2018, "1", "1")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, missing, extra, s := Diff(tt.inventory, tt.documents)

			assert.Equal(t, s.TotalInventory, len(matched)+len(missing))
			assert.Equal(t, s.TotalDocuments, len(matched)+len(extra))
			assert.GreaterOrEqual(t, s.MatchRate, 0.0)
			assert.LessOrEqual(t, s.MatchRate, 100.0)
			if s.TotalInventory == 0 {
				assert.Zero(t, s.MatchRate)
			}
		})
	}
}

func TestDiffCountsDuplicates(t *testing.T) {
	k := key("Anfa", "N", 2019, "1", "1")
	_, _, _, s := Diff([]id.ClassificationKey{k, k, k}, []id.ClassificationKey{k, k})

	assert.Equal(t, 1, s.TotalInventory)
	assert.Equal(t, 2, s.DuplicateInventory)
	assert.Equal(t, 1, s.DuplicateDocuments)
	assert.Equal(t, 100.0, s.MatchRate)
}

func TestBuildTree(t *testing.T) {
	inventory := []id.ClassificationKey{
		key("Anfa", "N", 2019, "12", "1"),
		key("Anfa", "N", 2019, "12", "2"),
		key("Anfa", "N", 2019, "12", "3"),
		key("Anfa", "D", 2020, "4", "1"),
	}
	documents := []id.ClassificationKey{
		key("Anfa", "N", 2019, "12", "1"),
		key("Anfa", "N", 2019, "12", "7"),
		key("Maarif", "N", 2019, "1", "1"),
	}

	summary, bureaux := BuildTree(inventory, documents)

	assert.Equal(t, Stats{InventoryCount: 4, ActualCount: 3, Matched: 3, Missing: 1, MatchRate: 75}, summary)

	registre := bureaux["Anfa"].Children["N"].Children["2019"].Children["12"]
	require.NotNil(t, registre)
	assert.Equal(t, 3, registre.InventoryCount)
	assert.Equal(t, 2, registre.ActualCount)
	assert.Equal(t, 2, registre.Matched, "count based: acte 7 offsets missing acte 2 or 3")
	assert.Equal(t, 1, registre.Missing)
	assert.Equal(t, 66.67, registre.MatchRate)
	assert.Nil(t, registre.Children)

	maarif := bureaux["Maarif"]
	assert.Equal(t, 0, maarif.InventoryCount)
	assert.Equal(t, 1, maarif.Extra)
	assert.Zero(t, maarif.MatchRate)

	anfaD := bureaux["Anfa"].Children["D"]
	assert.Equal(t, 1, anfaD.Missing)
	assert.Zero(t, anfaD.ActualCount)
}

func TestBuildTreeInvariants(t *testing.T) {
	var inventory, documents []id.ClassificationKey
	for i := range 40 {
		inventory = append(inventory, key(fmt.Sprintf("B%d", i%3), "N", 2000+i%4, fmt.Sprint(i%5), fmt.Sprint(i)))
		if i%3 != 0 {
			documents = append(documents, key(fmt.Sprintf("B%d", i%4), "N", 2000+i%4, fmt.Sprint(i%5), fmt.Sprint(i)))
		}
	}

	summary, bureaux := BuildTree(inventory, documents)

	var walk func(n *Node)
	walk = func(n *Node) {
		assert.Equal(t, min(n.InventoryCount, n.ActualCount), n.Matched)
		assert.Equal(t, n.InventoryCount, n.Matched+n.Missing)
		assert.Equal(t, n.ActualCount, n.Matched+n.Extra)
		assert.GreaterOrEqual(t, n.MatchRate, 0.0)
		assert.LessOrEqual(t, n.MatchRate, 100.0)

		inv, act := 0, 0
		for _, c := range n.Children {
			inv += c.InventoryCount
			act += c.ActualCount
			walk(c)
		}
		if n.Children != nil {
			assert.Equal(t, n.InventoryCount, inv)
			assert.Equal(t, n.ActualCount, act)
		}
	}
	walk(&Node{Stats: summary, Children: bureaux})
}

func TestMatchRate(t *testing.T) {
	assert.Zero(t, MatchRate(0, 0))
	assert.Zero(t, MatchRate(3, 0))
	assert.Equal(t, 33.33, MatchRate(1, 3))
	assert.Equal(t, 100.0, MatchRate(5, 5))
}
