package manifest

import (
	"fmt"
	"strings"
)

// Expected-result keys recognised when annotating a Patient narrative.
const (
	KeyAllDosesDueNow  = "All Doses Due Now"
	KeyAnyDoseDueNow   = "Any Dose Due Now"
	KeyRecommendation1 = "recommendation1"
	KeyRecommendation2 = "recommendation2"
)

// ExpectedResults holds named expectations used only for annotation. A key
// present with a null value is distinct from an absent key.
type ExpectedResults map[string]interface{}

// Has reports whether key is present, even with a null value.
func (e ExpectedResults) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// IsFlagStyle reports whether the two-flag shape is present.
func (e ExpectedResults) IsFlagStyle() bool {
	return e.Has(KeyAllDosesDueNow) || e.Has(KeyAnyDoseDueNow)
}

// IsRecommendationStyle reports whether the legacy two-recommendation shape is present.
func (e ExpectedResults) IsRecommendationStyle() bool {
	return e.Has(KeyRecommendation1) || e.Has(KeyRecommendation2)
}

// Annotation renders the expectation sentence appended to the narrative,
// or "" when no recognised shape is present. The flag shape takes
// precedence when both are present.
func (e ExpectedResults) Annotation(scenario *ClinicalScenario) string {
	switch {
	case e.IsFlagStyle():
		var parts []string
		for _, key := range []string{KeyAllDosesDueNow, KeyAnyDoseDueNow} {
			if e.Has(key) {
				parts = append(parts, fmt.Sprintf("%s=%s", key, scalarText(e[key])))
			}
		}
		return " Expected: " + strings.Join(parts, ", ") + "."
	case e.IsRecommendationStyle():
		fires := "does NOT fire"
		if scenario != nil && scenario.RuleFires {
			fires = "FIRES"
		}
		return fmt.Sprintf(" Expected: Rule %s. Recommendation 1: %s, Recommendation 2: %s.",
			fires, quotedOrNull(e[KeyRecommendation1]), quotedOrNull(e[KeyRecommendation2]))
	}
	return ""
}

func scalarText(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func quotedOrNull(v interface{}) string {
	switch typed := v.(type) {
	case nil:
		return "null"
	case string:
		if typed == "" {
			return "null"
		}
		return "'" + typed + "'"
	case bool:
		if !typed {
			return "null"
		}
	}
	return "'" + fmt.Sprint(v) + "'"
}
