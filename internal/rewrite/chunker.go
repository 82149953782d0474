// -----------------------------------------------------------------------
// Chunker - bounded, overlapping, boundary-aligned document splitting
// -----------------------------------------------------------------------

package rewrite

import (
	"strings"
	"unicode/utf8"

	"github.com/veridoc/rescribo/internal/models"
)

// boundaryLookback is how far back from a window's end we search for a
// sentence terminator or line break before giving up and cutting exactly at
// the window boundary.
const boundaryLookback = 200

// sentence terminators considered chunk-boundary candidates
const boundaryChars = ".!?\n"

// Split divides text into ordered, overlapping segments of at most
// maxChunkSize characters. Consecutive chunks share overlapSize characters
// so no sentence is lost at a cut point. When possible a chunk ends at the
// last sentence terminator or line break within the final boundaryLookback
// characters of its window; otherwise it cuts exactly at the window boundary.
//
// Split is pure and deterministic, and guarantees forward progress on every
// iteration regardless of overlap configuration.
func Split(text string, maxChunkSize, overlapSize int) []string {
	if text == "" || maxChunkSize < 1 {
		return nil
	}
	if overlapSize < 0 {
		overlapSize = 0
	}
	if len(text) <= maxChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + maxChunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		cut := end
		lookback := end - boundaryLookback
		if lookback < start {
			lookback = start
		}
		if idx := strings.LastIndexAny(text[lookback:end], boundaryChars); idx >= 0 {
			cut = lookback + idx + 1
		}
		cut = alignCut(text, start, cut)

		chunks = append(chunks, text[start:cut])

		next := cut - overlapSize
		for next > start && next < len(text) && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			// Overlap would rewind past the current window; advance without
			// overlap rather than looping forever.
			next = cut
		}
		start = next
	}

	return chunks
}

// alignCut moves a cut point back to the nearest rune start so a chunk never
// ends mid-character in multi-byte text. If the whole window fits inside a
// single rune, the cut extends forward past that rune instead; forward
// progress outranks the size cap there.
func alignCut(text string, start, cut int) int {
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == start {
		_, size := utf8.DecodeRuneInString(text[start:])
		cut = start + size
	}
	return cut
}

// Chunks splits text and wraps each segment with its 1-based position so the
// inference collaborator gets positional context and merge order is explicit.
func Chunks(text string, maxChunkSize, overlapSize int) []models.Chunk {
	parts := Split(text, maxChunkSize, overlapSize)
	chunks := make([]models.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = models.Chunk{
			Index: i + 1,
			Total: len(parts),
			Text:  part,
		}
	}
	return chunks
}
