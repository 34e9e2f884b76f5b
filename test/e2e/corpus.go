// Package e2e drives the full pipeline through the HTTP API with a stub
// model endpoint: projects, imports, uploads, vectorization and search all
// go through the same routes the CLI talks to.
package e2e

import (
	"encoding/csv"
	"os"
	"strings"

	"github.com/wes/duckbake/internal/vector"
)

// Vocabulary is the closed set of signature words the stub embedder counts.
// Every catalog row and corpus document carries two or three words of its
// own, so related texts point the same way and unrelated texts stay
// orthogonal.
var Vocabulary = []string{
	"espresso", "grinder",
	"kettle", "tea",
	"keyboard", "keycaps",
	"chair", "lumbar",
	"lamp", "dimmer",
	"monitor", "pixels",
	"backpack", "zippers",
	"blender", "smoothie",
	"llama", "alpaca", "wool",
	"glacier", "ice", "moraine",
	"telescope", "orbit", "nebula",
	"forklift", "pallet",
}

var vocabIndex = func() map[string]int {
	m := make(map[string]int, len(Vocabulary))
	for i, w := range Vocabulary {
		m[w] = i
	}
	return m
}()

// EmbedText derives a deterministic unit vector from vocabulary word
// counts. Texts with no vocabulary words embed as zero vectors and never
// outrank a real match.
func EmbedText(text string) []float32 {
	vec := make([]float32, len(Vocabulary))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]#*")
		if i, ok := vocabIndex[w]; ok {
			vec[i]++
		}
	}
	vector.Normalize(vec)
	return vec
}

// CatalogRow is one row of the demo products table.
type CatalogRow struct {
	Name        string
	Description string
}

// Catalog returns the rows imported into the products table. Each row owns
// two signature words: one repeated in name and description, one unique to
// the description.
func Catalog() []CatalogRow {
	return []CatalogRow{
		{"espresso machine", "Countertop espresso maker with a burr grinder"},
		{"electric kettle", "Rapid boil kettle for loose leaf tea"},
		{"mechanical keyboard", "Tactile keyboard with swappable keycaps"},
		{"office chair", "Adjustable chair with lumbar support"},
		{"desk lamp", "Warm light lamp with a brass dimmer"},
		{"wide monitor", "Curved monitor with four million pixels"},
		{"travel backpack", "Carry-on backpack with waterproof zippers"},
		{"countertop blender", "High speed blender for smoothie bowls"},
	}
}

// WriteCatalogCSV writes rows as a CSV file ready for import.
func WriteCatalogCSV(path string, rows []CatalogRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"name", "description"}); err != nil {
		f.Close()
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Name, r.Description}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TableQuery pairs a table search query with a fragment the top-ranked row
// must contain.
type TableQuery struct {
	Query        string
	WantFragment string
}

// TableQueries returns the query cases run against the products table.
func TableQueries() []TableQuery {
	return []TableQuery{
		{"espresso with grinder", "espresso machine"},
		{"kettle for tea", "electric kettle"},
		{"keyboard with keycaps", "mechanical keyboard"},
		{"chair with lumbar support", "office chair"},
		{"monitor with many pixels", "wide monitor"},
	}
}

// DocFile is one document of the demo corpus, rendered through
// FixtureBytes before upload.
type DocFile struct {
	Name    string
	Content string
}

// DocCorpus returns documents covering one plain and three extracted
// formats, each carrying its own signature words.
func DocCorpus() []DocFile {
	return []DocFile{
		{"camelids.txt", "The llama and the alpaca are camelids kept for wool.\n\nHerders shear the alpaca because its wool is warm and light."},
		{"glaciers.md", "# Glaciers\n\nA glacier is a moving body of compacted ice.\n\nWhen a glacier retreats it leaves a moraine of ground rock."},
		{"observatory.docx", "The observatory telescope tracks a comet in orbit near a bright nebula."},
		{"inventory.xlsx", "Warehouse forklift moves every pallet to the loading dock"},
	}
}

// DocQuery pairs a document search query with the filename expected to top
// the semantic results. Query terms appear verbatim in the file, so the
// keyword index must return it too.
type DocQuery struct {
	Query        string
	WantFilename string
}

// DocQueries returns the query cases run against the document corpus.
func DocQueries() []DocQuery {
	return []DocQuery{
		{"alpaca wool", "camelids.txt"},
		{"glacier ice", "glaciers.md"},
		{"telescope in orbit", "observatory.docx"},
		{"forklift pallet", "inventory.xlsx"},
	}
}
