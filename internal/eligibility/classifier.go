// Package eligibility decides whether a donor may give blood based on the text
// recognized from their medical report.
package eligibility

import (
	"regexp"
	"strconv"
)

// Reasons returned to clients. These strings are part of the API.
const (
	ReasonAgeOutOfRange   = "Age not in range 18-65"
	ReasonHemoglobinLow   = "Hemoglobin too low"
	ReasonChronicDisease  = "Chronic disease detected"
	ReasonEligible        = "Eligible for blood donation"
	ReasonNotChecked      = "Not checked"
	ReasonNoReadablePages = "No readable pages in document"
)

const (
	minAge        = 18
	maxAge        = 65
	minHemoglobin = 12.5
)

// Patterns are applied literally to OCR output.
var (
	agePattern        = regexp.MustCompile(`(?i)age[:\s]*(\d+)`)
	hemoglobinPattern = regexp.MustCompile(`(?i)hemoglobin[:\s]*(\d+(?:\.\d+)?)`)
	diseasePattern    = regexp.MustCompile(`(?i)diabetes|cancer|hiv|hepatitis`)
)

// Verdict is the outcome of an eligibility check. A nil Eligible means the
// donor was not evaluated.
type Verdict struct {
	Eligible *bool  `json:"eligible"`
	Reason   string `json:"reason"`
}

// Evaluated reports whether a decision was actually made.
func (v Verdict) Evaluated() bool {
	return v.Eligible != nil
}

// NotChecked is the verdict for requests without analyzable text.
func NotChecked() Verdict {
	return Verdict{Reason: ReasonNotChecked}
}

// NoReadablePages is the verdict for a PDF that rendered to zero pages.
func NoReadablePages() Verdict {
	return rejected(ReasonNoReadablePages)
}

// Classify applies the age, hemoglobin and disease rules in that order and
// returns the first failure, or an eligible verdict.
func Classify(text string) Verdict {
	if age, ok := findInt(agePattern, text); ok && (age < minAge || age > maxAge) {
		return rejected(ReasonAgeOutOfRange)
	}

	if hb, ok := findFloat(hemoglobinPattern, text); ok && hb < minHemoglobin {
		return rejected(ReasonHemoglobinLow)
	}

	if diseasePattern.MatchString(text) {
		return rejected(ReasonChronicDisease)
	}

	eligible := true
	return Verdict{Eligible: &eligible, Reason: ReasonEligible}
}

func rejected(reason string) Verdict {
	eligible := false
	return Verdict{Eligible: &eligible, Reason: reason}
}

func findInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

func findFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
