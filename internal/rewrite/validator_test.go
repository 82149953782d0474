// -----------------------------------------------------------------------
// Validator tests - entity-drift detection and sanitization
// -----------------------------------------------------------------------

package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndSanitize_IdentityRewritePasses(t *testing.T) {
	v := NewValidator(NewAnalyzer())
	text := "Case no. 1001 was reported by Ahmed Ali on 12/03/2024.\n\nThe complainant stated the incident occurred in Cairo."

	valid, sanitized, violations := v.ValidateAndSanitize(text, text)

	assert.True(t, valid)
	assert.Empty(t, violations)
	assert.Contains(t, sanitized, "Ahmed Ali")
	assert.Contains(t, sanitized, "1001")
}

func TestValidateAndSanitize_CatchesFabricatedName(t *testing.T) {
	v := NewValidator(NewAnalyzer())
	original := "Case 1001. Reported by Ahmed Ali."
	rewritten := "Case 1001. Reported by Ahmed Ali. Witnessed by Sara Hassan."

	valid, _, violations := v.ValidateAndSanitize(original, rewritten)

	assert.False(t, valid)
	require.NotEmpty(t, violations)
	found := false
	for _, violation := range violations {
		if strings.Contains(violation, "fabricated names") && strings.Contains(violation, "Sara Hassan") {
			found = true
		}
	}
	assert.True(t, found, "expected a fabricated-name violation naming Sara Hassan, got %v", violations)
}

func TestValidateAndSanitize_CatchesDroppedCaseNumber(t *testing.T) {
	v := NewValidator(NewAnalyzer())
	original := "Report number 2024-5001 concerns a burglary. The suspect fled."
	rewritten := "The report concerns a burglary. The suspect fled."

	valid, _, violations := v.ValidateAndSanitize(original, rewritten)

	assert.False(t, valid)
	found := false
	for _, violation := range violations {
		if strings.Contains(violation, "missing in rewrite") && strings.Contains(violation, "2024-5001") {
			found = true
		}
	}
	assert.True(t, found, "expected a dropped-case-number violation for 2024-5001, got %v", violations)
}

func TestValidateAndSanitize_CatchesFabricatedCaseNumber(t *testing.T) {
	v := NewValidator(NewAnalyzer())
	original := "Case 1001 was filed."
	rewritten := "Case 1001 was filed. See also case 9999."

	valid, _, violations := v.ValidateAndSanitize(original, rewritten)

	assert.False(t, valid)
	found := false
	for _, violation := range violations {
		if strings.Contains(violation, "fabricated or altered case numbers") {
			found = true
		}
	}
	assert.True(t, found, "expected a fabricated-case-number violation, got %v", violations)
}

func TestValidateAndSanitize_DeduplicatesParagraphs(t *testing.T) {
	v := NewValidator(NewAnalyzer())
	original := "The suspect was released."
	rewritten := "The suspect was released.\n\nThe suspect was released."

	valid, sanitized, violations := v.ValidateAndSanitize(original, rewritten)

	assert.False(t, valid)
	assert.Equal(t, 1, strings.Count(sanitized, "The suspect was released."))
	found := false
	for _, violation := range violations {
		if strings.Contains(violation, "duplicate paragraphs") {
			found = true
		}
	}
	assert.True(t, found, "expected a duplicate-paragraph violation, got %v", violations)
}

func TestValidateAndSanitize_StripsForbiddenHeadings(t *testing.T) {
	v := NewValidator(NewAnalyzer())
	original := "Case 4521 was closed."
	rewritten := "Rewritten Report\n\nCase 4521 was closed.\n\nPart 1 of 3:"

	valid, sanitized, violations := v.ValidateAndSanitize(original, rewritten)

	assert.True(t, valid)
	assert.Empty(t, violations)
	assert.NotContains(t, sanitized, "Rewritten Report")
	assert.NotContains(t, sanitized, "Part 1 of 3")
	assert.Contains(t, sanitized, "Case 4521 was closed.")
}

func TestValidateAndSanitize_CatchesFabricatedSection(t *testing.T) {
	v := NewValidator(NewAnalyzer())
	original := "The hearing took place."
	rewritten := "Summary:\nThe hearing took place."

	valid, _, violations := v.ValidateAndSanitize(original, rewritten)

	assert.False(t, valid)
	found := false
	for _, violation := range violations {
		if strings.Contains(violation, "fabricated section headings") && strings.Contains(violation, "summary") {
			found = true
		}
	}
	assert.True(t, found, "expected a fabricated-section violation, got %v", violations)
}
