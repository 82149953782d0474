package interfaces

import (
	"github.com/veridoc/rescribo/internal/models"
)

// TextAnalyzer extracts an EntitySet from raw text. The validator only diffs
// two EntitySets, so extraction quality can improve (dictionary, ML) without
// touching the validation contract. Implementations must be deterministic:
// identical text yields an identical set.
type TextAnalyzer interface {
	Extract(text string) *models.EntitySet
}
