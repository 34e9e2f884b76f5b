package e2e

import (
	"math"
	"strings"
	"testing"

	"github.com/wes/duckbake/internal/vector"
)

func TestEmbedText_deterministicUnitVectors(t *testing.T) {
	a := EmbedText("espresso machine with a burr grinder")
	b := EmbedText("espresso machine with a burr grinder")
	if got := vector.Cosine(a, b); math.Abs(got-1) > 1e-6 {
		t.Errorf("identical texts cosine = %f, want 1", got)
	}
	var sum float64
	for _, x := range a {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("squared magnitude = %f, want 1", sum)
	}
}

func TestEmbedText_unrelatedTextsOrthogonal(t *testing.T) {
	a := EmbedText("espresso with grinder")
	b := EmbedText("kettle for tea")
	if got := vector.Cosine(a, b); got != 0 {
		t.Errorf("disjoint vocabulary cosine = %f, want 0", got)
	}
}

func TestEmbedText_noVocabularyWordsIsZero(t *testing.T) {
	vec := EmbedText("completely unrelated sentence about nothing")
	for i, x := range vec {
		if x != 0 {
			t.Fatalf("component %d = %f, want zero vector", i, x)
		}
	}
}

// Every table query must rank its own row first when scored the way the
// pipeline does: one joined name-plus-description text per row.
func TestTableQueries_queryPointsAtItsRow(t *testing.T) {
	rows := Catalog()
	for _, tc := range TableQueries() {
		qv := EmbedText(tc.Query)
		best, bestScore := "", -1.0
		for _, r := range rows {
			content := r.Name + " " + r.Description
			if score := vector.Cosine(qv, EmbedText(content)); score > bestScore {
				best, bestScore = content, score
			}
		}
		if bestScore <= 0 {
			t.Errorf("%q: best score %f, want > 0", tc.Query, bestScore)
		}
		if !strings.Contains(best, tc.WantFragment) {
			t.Errorf("%q: best row %q does not contain %q", tc.Query, best, tc.WantFragment)
		}
	}
}

func TestDocQueries_queryPointsAtItsFile(t *testing.T) {
	docs := DocCorpus()
	for _, tc := range DocQueries() {
		qv := EmbedText(tc.Query)
		best, bestScore := "", -1.0
		for _, d := range docs {
			if score := vector.Cosine(qv, EmbedText(d.Content)); score > bestScore {
				best, bestScore = d.Name, score
			}
		}
		if best != tc.WantFilename {
			t.Errorf("%q: best doc %s (score %f), want %s", tc.Query, best, bestScore, tc.WantFilename)
		}
	}
}

// The keyword index matches exact terms only, so each document query must
// share at least one literal word with its target file.
func TestDocQueries_termsAppearVerbatim(t *testing.T) {
	byName := make(map[string]string)
	for _, d := range DocCorpus() {
		byName[d.Name] = strings.ToLower(d.Content)
	}
	for _, tc := range DocQueries() {
		content, ok := byName[tc.WantFilename]
		if !ok {
			t.Fatalf("%q: no corpus file named %s", tc.Query, tc.WantFilename)
		}
		var hit bool
		for _, term := range strings.Fields(strings.ToLower(tc.Query)) {
			if strings.Contains(content, term) {
				hit = true
				break
			}
		}
		if !hit {
			t.Errorf("%q: no query term appears in %s", tc.Query, tc.WantFilename)
		}
	}
}
