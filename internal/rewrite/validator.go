// -----------------------------------------------------------------------
// Validator - entity-drift detection and mechanical sanitization
// -----------------------------------------------------------------------

package rewrite

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/models"
)

// forbiddenHeadingPatterns match boilerplate lines the model sometimes
// invents around chunk output. These are stripped during sanitization; the
// set is deliberately small so legitimate repeated structural headers
// survive.
var forbiddenHeadingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^#*\s*(?:rewritten|reorganized|revised)\s+(?:report|document|version)\b.*$`),
	regexp.MustCompile(`(?i)^\s*(?:continuation|end)\s+of\s+(?:part|chunk|fragment)\b.*$`),
	regexp.MustCompile(`(?i)^\s*part\s+\d+\s+of\s+\d+\s*:?\s*$`),
	regexp.MustCompile(`(?i)^\s*\[?(?:note|disclaimer)\s*:\s*(?:this|the)\s+(?:document|report|text)\b.*$`),
}

var paragraphSeparator = regexp.MustCompile(`\n\s*\n`)

// Validator diffs the entity sets of original and rewritten text and
// mechanically cleans the rewritten text. It is a best-effort safety net:
// it detects entity-level drift (invented or dropped names, numbers,
// sections, duplicated paragraphs), not semantic fabrication.
type Validator struct {
	analyzer interfaces.TextAnalyzer
}

// NewValidator creates a validator over the given analyzer
func NewValidator(analyzer interfaces.TextAnalyzer) *Validator {
	return &Validator{analyzer: analyzer}
}

// ValidateAndSanitize compares rewritten against original and returns
// whether validation passed, the sanitized rewritten text, and the ordered
// list of violation descriptions. All rules are checked independently and
// all findings collected; nothing short-circuits. The sanitized text is
// returned whether or not validation passed - callers use it regardless and
// record the violations for audit.
func (v *Validator) ValidateAndSanitize(original, rewritten string) (bool, string, []string) {
	originalSet := v.analyzer.Extract(original)
	rewrittenSet := v.analyzer.Extract(rewritten)

	violations := []string{}

	if fabricated := models.Subtract(rewrittenSet.Names, originalSet.Names); len(fabricated) > 0 {
		violations = append(violations,
			fmt.Sprintf("fabricated names not present in original: %s", strings.Join(fabricated, ", ")))
	}

	if fabricated := models.Subtract(rewrittenSet.Roles, originalSet.Roles); len(fabricated) > 0 {
		violations = append(violations,
			fmt.Sprintf("fabricated roles not present in original: %s", strings.Join(fabricated, ", ")))
	}

	newNumbers := models.Subtract(rewrittenSet.CaseNumbers, originalSet.CaseNumbers)
	if len(rewrittenSet.CaseNumbers) > len(originalSet.CaseNumbers) || len(newNumbers) > 0 {
		detail := "count increased"
		if len(newNumbers) > 0 {
			detail = strings.Join(newNumbers, ", ")
		}
		violations = append(violations,
			fmt.Sprintf("fabricated or altered case numbers: %s", detail))
	}

	if dropped := models.Subtract(originalSet.Names, rewrittenSet.Names); len(dropped) > 0 {
		violations = append(violations,
			fmt.Sprintf("names from original missing in rewrite: %s", strings.Join(dropped, ", ")))
	}

	if dropped := models.Subtract(originalSet.CaseNumbers, rewrittenSet.CaseNumbers); len(dropped) > 0 {
		violations = append(violations,
			fmt.Sprintf("case numbers from original missing in rewrite: %s", strings.Join(dropped, ", ")))
	}

	if fabricated := models.Subtract(rewrittenSet.Sections, originalSet.Sections); len(fabricated) > 0 {
		violations = append(violations,
			fmt.Sprintf("fabricated section headings: %s", strings.Join(fabricated, ", ")))
	}

	if hasDuplicateParagraphs(rewritten) {
		violations = append(violations, "duplicate paragraphs detected in rewrite")
	}

	sanitized := removeDuplicateParagraphs(rewritten)
	sanitized = stripForbiddenHeadings(sanitized)
	if len(violations) > 0 {
		// Re-apply in case duplicate removal re-joined text around a
		// forbidden line; the pass is idempotent.
		sanitized = stripForbiddenHeadings(sanitized)
	}

	return len(violations) == 0, sanitized, violations
}

// paragraphHash identifies a paragraph by the hash of its trimmed content
func paragraphHash(paragraph string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(paragraph)))
}

func hasDuplicateParagraphs(text string) bool {
	seen := make(map[[32]byte]bool)
	for _, paragraph := range paragraphSeparator.Split(text, -1) {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		hash := paragraphHash(paragraph)
		if seen[hash] {
			return true
		}
		seen[hash] = true
	}
	return false
}

// removeDuplicateParagraphs drops exact-duplicate paragraphs, keeping only
// the first occurrence of each
func removeDuplicateParagraphs(text string) string {
	paragraphs := paragraphSeparator.Split(text, -1)
	seen := make(map[[32]byte]bool)
	var kept []string

	for _, paragraph := range paragraphs {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		hash := paragraphHash(paragraph)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		kept = append(kept, strings.TrimSpace(paragraph))
	}

	return strings.Join(kept, "\n\n")
}

// stripForbiddenHeadings removes lines matching the forbidden boilerplate
// patterns
func stripForbiddenHeadings(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string

	for _, line := range lines {
		forbidden := false
		for _, pattern := range forbiddenHeadingPatterns {
			if pattern.MatchString(line) {
				forbidden = true
				break
			}
		}
		if !forbidden {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}
