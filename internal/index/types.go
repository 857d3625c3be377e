package index

import "encoding/json"

// DeleteByQueryResult carries the engine's accounting for a server-side
// delete. Failures holds the raw failure entries so callers can log them
// without this package guessing at their shape.
type DeleteByQueryResult struct {
	Took     int               `json:"took"`
	Total    int               `json:"total"`
	Deleted  int               `json:"deleted"`
	Failures []json.RawMessage `json:"failures"`
}

// SearchResult is a parsed search response.
type SearchResult struct {
	Total int
	Hits  []Hit
}

// Hit is one search match, with the raw source document and any highlight
// fragments keyed by field.
type Hit struct {
	ID        string
	Score     float64
	Source    json.RawMessage
	Highlight map[string][]string
}

type putResponse struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

type getResponse struct {
	ID     string          `json:"_id"`
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Score     float64             `json:"_score"`
			Source    json.RawMessage     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}
