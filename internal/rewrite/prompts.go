package rewrite

import (
	"fmt"
)

// systemPrompt carries the non-fabrication contract. Every inference call in
// the pipeline uses it; nothing in the user prompt may weaken it.
const systemPrompt = `You are a document reorganization assistant for an investigation office.
You rewrite noisy, OCR-derived investigation reports into clean, well-structured documents.

Strict rules - violating any of them makes the output unusable:
1. NEVER invent facts, names, roles, numbers, dates, places, or events that are not in the input.
2. NEVER drop a person's name, a case or report number, a date, or a national ID that appears in the input.
3. NEVER change numbers, dates, or identifiers in any way.
4. Do not add commentary, disclaimers, notes, or headings about the rewriting process itself.
5. Preserve the meaning of every statement; reorganize and clean wording only.
6. If a passage is garbled beyond recovery, keep it verbatim rather than guessing its meaning.`

// sectionTemplate is the fixed structure requested for single-chunk rewrites
const sectionTemplate = `Case Data
Parties
Incident Summary
Scene Description
Seized Items
Damages
Statements
Police Actions
Withdrawal / Settlement
Prosecution Decisions
Custody Handover
Key Dates
Signatures
Appendices`

// buildFullRewritePrompt builds the user prompt for a document that fits in
// a single inference call
func buildFullRewritePrompt(text string) string {
	return fmt.Sprintf(`Reorganize the following investigation report into these sections, in this order, omitting sections with no content in the input:

%s

Output only the reorganized report text.

Report:
%s`, sectionTemplate, text)
}

// buildChunkRewritePrompt builds the user prompt for one fragment of a
// larger document. The fragment position is stated so the model does not
// treat the fragment as a complete report.
func buildChunkRewritePrompt(index, total int, text string) string {
	return fmt.Sprintf(`The following text is fragment %d of %d of a long investigation report.
Clean and reorganize this fragment only. Do not summarize, do not add introductions or conclusions, and do not refer to other fragments. Output only the cleaned fragment text.

Fragment %d of %d:
%s`, index, total, index, total, text)
}
