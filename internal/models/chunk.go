package models

// Chunk is one bounded segment of a long document, processed independently
// by a single inference call. Index and Total are 1-based so prompts can tell
// the model which fragment it is working on; merge order is by Index
// regardless of completion order.
type Chunk struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	Text  string `json:"text"`
}
