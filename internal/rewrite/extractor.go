// -----------------------------------------------------------------------
// Entity Extractor - regex/dictionary extraction of salient report facts
// -----------------------------------------------------------------------

package rewrite

import (
	"regexp"
	"strings"

	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/models"
)

// institutionalTerms are capitalized tokens that look like name parts but
// belong to institutions, not people. A candidate name containing any of
// these is discarded. The extractor is deliberately conservative: a missed
// name in the original text would later surface as a spurious "new name"
// violation, so false negatives are cheaper than false positives.
var institutionalTerms = map[string]bool{
	"ministry": true, "interior": true, "justice": true, "court": true,
	"police": true, "station": true, "prosecution": true, "prosecutor": true,
	"office": true, "department": true, "directorate": true, "administration": true,
	"authority": true, "bureau": true, "division": true, "security": true,
	"national": true, "general": true, "public": true, "criminal": true,
	"investigation": true, "investigations": true, "report": true, "record": true,
	"case": true, "district": true, "governorate": true, "republic": true,
	"state": true, "attorney": true,
}

// roleTerms is the fixed vocabulary of investigative role words
var roleTerms = []string{
	"complainant", "defendant", "witness", "suspect", "accused",
	"victim", "plaintiff", "officer", "investigator", "detainee",
	"informant", "guardian",
}

// sectionTerms is the fixed vocabulary of section-heading words, matched
// only at the start of a line (optionally followed by a colon)
var sectionTerms = []string{
	"summary", "parties", "incident", "scene", "statements", "findings",
	"seized", "damages", "actions", "decision", "decisions", "custody",
	"withdrawal", "settlement", "appendices", "signatures", "dates",
	"conclusion",
}

// locationStopWords are tokens after a locative preposition that are not
// place names
var locationStopWords = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "those": true,
	"a": true, "an": true, "his": true, "her": true, "their": true,
	"which": true, "front": true, "order": true, "addition": true,
}

var (
	// 2-5 contiguous capitalized alphabetic tokens
	namePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+){1,4}\b`)

	// numeric tokens immediately preceded by a case/report-number label
	caseNumberPattern = regexp.MustCompile(`(?i)\b(?:case|report|record)\s*(?:no\.?|number|num\.?|#)?\s*:?\s*([0-9][0-9/-]*[0-9]|[0-9]+)`)

	// D[D]-M[M]-Y{2,4} or Y{4}-M[M]-D[D], separator - or /
	datePattern = regexp.MustCompile(`\b(?:\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2})\b`)

	// H[H]:MM[:SS]
	timePattern = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)

	// bare numeric tokens of 9-12 digits
	nationalIDPattern = regexp.MustCompile(`\b\d{9,12}\b`)

	// capitalized token following a locative preposition
	locationPattern = regexp.MustCompile(`\b(?:in|at|near)\s+([A-Z][A-Za-z]+)`)

	wordPattern = regexp.MustCompile(`[a-zA-Z]+`)
)

// Analyzer is the regex/dictionary implementation of the TextAnalyzer
// capability. It is a pure function over its input: no state, no I/O.
type Analyzer struct{}

// NewAnalyzer creates the default regex-based text analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

var _ interfaces.TextAnalyzer = (*Analyzer)(nil)

// Extract scans text and produces its EntitySet
func (a *Analyzer) Extract(text string) *models.EntitySet {
	set := models.NewEntitySet()

	for _, candidate := range namePattern.FindAllString(text, -1) {
		candidate = trimRoleTitle(candidate)
		if candidate == "" || isInstitutional(candidate) {
			continue
		}
		set.Names[candidate] = true
	}

	lowerWords := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(text, -1) {
		lowerWords[strings.ToLower(w)] = true
	}
	for _, role := range roleTerms {
		if lowerWords[role] {
			set.Roles[role] = true
		}
	}

	for _, match := range caseNumberPattern.FindAllStringSubmatch(text, -1) {
		set.CaseNumbers[match[1]] = true
	}

	for _, date := range datePattern.FindAllString(text, -1) {
		set.Dates[date] = true
	}

	for _, t := range timePattern.FindAllString(text, -1) {
		set.Times[t] = true
	}

	for _, id := range nationalIDPattern.FindAllString(text, -1) {
		set.NationalIDs[id] = true
	}

	for _, match := range locationPattern.FindAllStringSubmatch(text, -1) {
		token := match[1]
		lower := strings.ToLower(token)
		if locationStopWords[lower] || isRoleWord(lower) {
			continue
		}
		set.Locations[token] = true
	}

	for _, line := range strings.Split(text, "\n") {
		heading := strings.ToLower(strings.TrimSpace(line))
		heading = strings.TrimSuffix(heading, ":")
		for _, section := range sectionTerms {
			if heading == section {
				set.Sections[section] = true
			}
		}
	}

	return set
}

// trimRoleTitle drops leading role words from a name candidate, so that
// "Witness Sara Hassan" and "Sara Hassan" compare as the same person. A
// candidate that is all role words yields the empty string.
func trimRoleTitle(candidate string) string {
	tokens := strings.Fields(candidate)
	for len(tokens) > 0 && isRoleWord(strings.ToLower(tokens[0])) {
		tokens = tokens[1:]
	}
	if len(tokens) < 2 {
		return ""
	}
	return strings.Join(tokens, " ")
}

func isInstitutional(candidate string) bool {
	for _, token := range strings.Fields(candidate) {
		if institutionalTerms[strings.ToLower(token)] {
			return true
		}
	}
	return false
}

func isRoleWord(lower string) bool {
	for _, role := range roleTerms {
		if lower == role {
			return true
		}
	}
	return false
}
