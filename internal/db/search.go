package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit from a search.
// Score is a similarity in [0,1] (cosine distance converted by the driver).
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
