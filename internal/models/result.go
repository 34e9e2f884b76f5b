package models

// TableSearchResult is one ranked row from table similarity search.
type TableSearchResult struct {
	RowID   int64   `json:"row_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// DocumentSearchResult is one ranked chunk joined back to its parent document.
type DocumentSearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// KeywordSearchResult is one keyword-index hit for a document.
type KeywordSearchResult struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// DocumentSearchResponse carries semantic and keyword hits as separate lists;
// the two score spaces are not merged.
type DocumentSearchResponse struct {
	Query           string                 `json:"query"`
	SemanticResults []DocumentSearchResult `json:"semantic_results"`
	KeywordResults  []KeywordSearchResult  `json:"keyword_results"`
	QueryTimeMillis int64                  `json:"query_time_ms"`
}
