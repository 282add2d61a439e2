package summary

import (
	"fmt"
	"strings"
	"time"
)

const (
	conditionDisplayLimit = 30
	notesLimit            = 50
	referenceDateLayout   = "January 2, 2006"
)

// AgeBands counts cases per fixed age band in months.
type AgeBands struct {
	Infants  int // < 12
	Toddlers int // 12-47
	Children int // 48-215
	Adults   int // >= 216
}

// Statistics aggregates the summaries of one report.
type Statistics struct {
	Ages             AgeBands
	NoDoses          int
	OneDose          int
	TwoPlusDoses     int
	WithClinicalData int
	NoClinicalData   int
}

// ComputeStatistics buckets summaries by age, dose count and clinical data.
func ComputeStatistics(summaries []*CaseSummary) Statistics {
	var st Statistics
	for _, tc := range summaries {
		switch m := tc.Age.TotalMonths; {
		case m < 12:
			st.Ages.Infants++
		case m < 48:
			st.Ages.Toddlers++
		case m < 216:
			st.Ages.Children++
		default:
			st.Ages.Adults++
		}
		switch n := tc.DoseCount(); {
		case n == 0:
			st.NoDoses++
		case n == 1:
			st.OneDose++
		default:
			st.TwoPlusDoses++
		}
		if tc.HasClinicalData() {
			st.WithClinicalData++
		} else {
			st.NoClinicalData++
		}
	}
	return st
}

// GenerateReport renders the Markdown summary: header, overview table,
// one detail section per case in the given order, then statistics.
func GenerateReport(summaries []*CaseSummary, ref time.Time) string {
	var b strings.Builder
	refDisplay := ref.UTC().Format(referenceDateLayout)

	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# MMR Test Cases Summary")
	line("")
	line("**Reference Date:** %s", refDisplay)
	line("")
	line("This document provides an overview of all MMR test case patients, including their ages, vaccination history, conditions, and expected recommendations.")
	line("")

	line("## Quick Reference Table")
	line("")
	line("| Test Case | Age | Prior MMR Doses | Dose Dates | Conditions | Notes |")
	line("|-----------|-----|-----------------|------------|------------|-------|")
	for _, tc := range summaries {
		line("| [%s](#%s) | %s | %d | %s | %s | %s |",
			tc.TestCaseID, tc.TestCaseID, tc.Age.Display(), tc.DoseCount(),
			overviewDoses(tc), overviewConditions(tc), truncate(tc.Notes, notesLimit, "..."))
	}
	line("")
	line("---")
	line("")

	line("## Detailed Test Case Information")
	line("")
	for _, tc := range summaries {
		writeDetail(&b, tc)
	}

	st := ComputeStatistics(summaries)
	line("## Summary Statistics")
	line("")
	line("### By Age Group")
	line("- **Infants (<12 months):** %d test cases", st.Ages.Infants)
	line("- **Toddlers (12-47 months):** %d test cases", st.Ages.Toddlers)
	line("- **Children (4-18 years):** %d test cases", st.Ages.Children)
	line("- **Adults (>18 years):** %d test cases", st.Ages.Adults)
	line("")
	line("### By Vaccination Status")
	line("- **No prior MMR doses:** %d test cases", st.NoDoses)
	line("- **1 prior MMR dose:** %d test cases", st.OneDose)
	line("- **2+ prior MMR doses:** %d test cases", st.TwoPlusDoses)
	line("")
	line("### By Clinical Conditions")
	line("- **No conditions:** %d test cases", st.NoClinicalData)
	line("- **With conditions/labs:** %d test cases", st.WithClinicalData)
	line("")
	line("---")
	line("")
	line("## Notes on Date Calculations")
	line("")
	line("All ages are calculated as of **%s**.", refDisplay)
	line("")
	line("When a dose date is shown with patient age, this represents the age at vaccination calculated from birth date to vaccination date.")
	line("")
	line("---")
	line("")
	b.WriteString("*This document was auto-generated by `casegen summarize`*")

	return b.String()
}

func writeDetail(b *strings.Builder, tc *CaseSummary) {
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(b, format, args...)
		b.WriteByte('\n')
	}

	line("### %s", tc.TestCaseID)
	line("**Patient Age:** %d years %d months (born %s)", tc.Age.Years, tc.Age.Months, tc.BirthDate)
	line("**MMR Doses:** %d", tc.DoseCount())

	if len(tc.Doses) > 0 {
		line("**Dose History:**")
		for i, d := range tc.Doses {
			line("- Dose %d: %s (patient age %s months)", i+1, d.Date, monthsText(d.AgeInMonths))
		}
		line("")
	}

	if len(tc.Conditions) > 0 {
		line("**Conditions:**")
		for _, c := range tc.Conditions {
			line("- %s - %s %s", c.Display, c.System, c.Code)
		}
		line("")
	} else {
		line("**Conditions:** None")
		line("")
	}

	if len(tc.Observations) > 0 {
		line("**Laboratory Results:**")
		for _, o := range tc.Observations {
			line("- %s: **%s**", o.Display, o.Value)
		}
		line("")
	}

	if tc.Notes != "" {
		line("**Notes:** %s", tc.Notes)
		line("")
	}

	line("---")
	line("")
}

func overviewDoses(tc *CaseSummary) string {
	if len(tc.Doses) == 0 {
		return "None"
	}
	parts := make([]string, len(tc.Doses))
	for i, d := range tc.Doses {
		parts[i] = fmt.Sprintf("%s (%smo)", d.Date, monthsText(d.AgeInMonths))
	}
	return strings.Join(parts, "<br>")
}

func overviewConditions(tc *CaseSummary) string {
	if len(tc.Conditions) == 0 {
		return "None"
	}
	parts := make([]string, len(tc.Conditions))
	for i, c := range tc.Conditions {
		parts[i] = truncate(c.Display, conditionDisplayLimit, "")
	}
	return strings.Join(parts, ", ")
}

func monthsText(months int) string {
	if months < 0 {
		return "?"
	}
	return fmt.Sprintf("%d", months)
}

// truncate cuts s to limit runes, appending suffix only when it cut.
func truncate(s string, limit int, suffix string) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + suffix
}
