package models

// RewriteRequest is the submission payload for a rewrite job. Exactly one of
// Text and StorageRef must carry the source; inline text wins when both are
// present.
type RewriteRequest struct {
	// Text is the source document submitted inline.
	Text string `json:"text" validate:"required_without=StorageRef"`

	// StorageRef names an object already stored by a prior ingestion step.
	StorageRef string `json:"storageRef" validate:"required_without=Text"`

	// SessionID is an optional caller-supplied correlation tag.
	SessionID string `json:"sessionId"`

	// Model optionally overrides the configured rewrite model.
	Model string `json:"model"`
}
