// -----------------------------------------------------------------------
// Rewrite Engine - per-chunk LLM rewriting and ordered merge
// -----------------------------------------------------------------------

package rewrite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
)

// ChunkError reports which fragment's inference call failed. A single
// failing chunk aborts the whole rewrite attempt; there is no partial-result
// fallback.
type ChunkError struct {
	Index int
	Total int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("rewrite of chunk %d/%d failed: %v", e.Index, e.Total, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Engine rewrites documents through the inference collaborator. Short
// documents go through one call carrying the full section template; long
// documents are split into overlapping chunks, rewritten one call per chunk,
// and merged in chunk order. Generation parameters are fixed near zero
// temperature with a bounded output length, because the contract is
// "reorganize, never invent".
type Engine struct {
	llm             interfaces.CompletionService
	maxChunkSize    int
	overlapSize     int
	maxOutputTokens int
	temperature     float32
	model           string
	logger          arbor.ILogger
}

// NewEngine creates a rewrite engine with explicit pipeline parameters
func NewEngine(llm interfaces.CompletionService, cfg *common.RewriteConfig, logger arbor.ILogger) *Engine {
	return &Engine{
		llm:             llm,
		maxChunkSize:    cfg.MaxChunkSize,
		overlapSize:     cfg.OverlapSize,
		maxOutputTokens: cfg.MaxOutputTokens,
		temperature:     cfg.Temperature,
		model:           cfg.Model,
		logger:          logger,
	}
}

// Rewrite produces the rewritten document and the model that produced it.
// Chunks are processed sequentially; outputs are nevertheless re-sorted by
// chunk index before concatenation so final-document order never depends on
// completion order.
func (e *Engine) Rewrite(ctx context.Context, original string) (string, string, error) {
	chunks := Chunks(original, e.maxChunkSize, e.overlapSize)
	if len(chunks) == 0 {
		return "", "", fmt.Errorf("nothing to rewrite: empty input")
	}

	if len(chunks) == 1 {
		resp, err := e.llm.Complete(ctx, &interfaces.CompletionRequest{
			System:      systemPrompt,
			Prompt:      buildFullRewritePrompt(original),
			Model:       e.model,
			Temperature: e.temperature,
			MaxTokens:   e.maxOutputTokens,
		})
		if err != nil {
			return "", "", &ChunkError{Index: 1, Total: 1, Err: err}
		}
		return resp.Text, resp.Model, nil
	}

	e.logger.Info().
		Int("chunks", len(chunks)).
		Int("input_chars", len(original)).
		Msg("Rewriting document in chunks")

	type chunkResult struct {
		index int
		text  string
	}

	results := make([]chunkResult, 0, len(chunks))
	var model string

	for _, chunk := range chunks {
		resp, err := e.llm.Complete(ctx, &interfaces.CompletionRequest{
			System:      systemPrompt,
			Prompt:      buildChunkRewritePrompt(chunk.Index, chunk.Total, chunk.Text),
			Model:       e.model,
			Temperature: e.temperature,
			MaxTokens:   e.maxOutputTokens,
		})
		if err != nil {
			return "", "", &ChunkError{Index: chunk.Index, Total: chunk.Total, Err: err}
		}

		e.logger.Debug().
			Int("chunk", chunk.Index).
			Int("total", chunk.Total).
			Int("output_chars", len(resp.Text)).
			Msg("Chunk rewritten")

		results = append(results, chunkResult{index: chunk.Index, text: resp.Text})
		model = resp.Model
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].index < results[j].index
	})

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.text
	}

	return strings.Join(parts, "\n"), model, nil
}

// ChunkCount reports how many inference calls a document of the given length
// would need. Used for logging and cost estimation before execution.
func (e *Engine) ChunkCount(textLength int) int {
	if textLength <= 0 {
		return 0
	}
	if textLength <= e.maxChunkSize {
		return 1
	}
	stride := e.maxChunkSize - e.overlapSize
	if stride < 1 {
		stride = 1
	}
	return (textLength + stride - 1) / stride
}
