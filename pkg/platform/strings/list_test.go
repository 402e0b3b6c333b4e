package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: nil},
		{raw: "   ", want: nil},
		{raw: "Anfa", want: []string{"Anfa"}},
		{raw: " Anfa ,Maarif  ,  Sidi Belyout", want: []string{"Anfa", "Maarif", "Sidi Belyout"}},
		{raw: "Anfa,Maarif,Anfa,Hay Hassani,Maarif", want: []string{"Anfa", "Maarif", "Hay Hassani"}},
		{raw: "Anfa,, ,Maarif", want: []string{"Anfa", "Maarif"}},
		{raw: "Anfa,anfa", want: []string{"Anfa", "anfa"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.raw, ","))
		})
	}
}

func TestDedupeAndTrimKeepsNil(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Empty(t, DedupeAndTrim([]string{" ", ""}))
}
