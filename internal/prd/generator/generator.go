// Package generator renders PRD markdown from a completed discovery
// session. The deterministic template is both the no-provider path and
// the fallback when an LLM draft fails validation.
package generator

import (
	"fmt"
	"strings"

	discovery "ralphbot/internal/discovery/models"
)

// RequiredSections are the headers every PRD must carry, template and
// LLM drafts alike.
var RequiredSections = []string{
	"Overview",
	"Problem",
	"Audience",
	"Features",
	"Constraints",
	"Success Criteria",
	"Open Questions",
}

// SystemPrompt instructs the provider to produce the exact section set
// the validator expects.
const SystemPrompt = `You write product requirement documents in markdown.
Produce exactly these second-level sections, in order:
## Overview, ## Problem, ## Audience, ## Features, ## Constraints,
## Success Criteria, ## Open Questions.
List features as "- " bullets, one per line. Be concise and concrete.
Output only the markdown document.`

// UserPrompt formats the discovery answers for the provider.
func UserPrompt(res *discovery.Result) string {
	var b strings.Builder
	b.WriteString("Write a PRD from these discovery answers.\n\n")
	fmt.Fprintf(&b, "Problem: %s\n", res.Problem)
	fmt.Fprintf(&b, "Audience: %s\n", res.Audience)
	fmt.Fprintf(&b, "Features: %s\n", res.Features)
	if res.Constraints != "" {
		fmt.Fprintf(&b, "Constraints: %s\n", res.Constraints)
	}
	return b.String()
}

// RenderTemplate produces the deterministic PRD from discovery answers.
func RenderTemplate(res *discovery.Result) string {
	features := SplitFeatures(res.Features)
	constraints := res.Constraints
	if strings.TrimSpace(constraints) == "" {
		constraints = "None stated."
	}

	var b strings.Builder
	b.WriteString("# Product Requirements\n\n")

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "This document captures the requirements gathered on %s.\n\n",
		res.CompletedAt.Format("2006-01-02"))

	b.WriteString("## Problem\n\n")
	b.WriteString(res.Problem + "\n\n")

	b.WriteString("## Audience\n\n")
	b.WriteString(res.Audience + "\n\n")

	b.WriteString("## Features\n\n")
	for _, f := range features {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n")

	b.WriteString("## Constraints\n\n")
	b.WriteString(constraints + "\n\n")

	b.WriteString("## Success Criteria\n\n")
	b.WriteString("- The audience described above can rely on every feature listed.\n")
	b.WriteString("- The constraints are respected in the shipped solution.\n\n")

	b.WriteString("## Open Questions\n\n")
	b.WriteString("- None recorded during discovery.\n")

	return b.String()
}

// ValidateSections reports whether the markdown carries every required
// section header. LLM drafts that fail this check are discarded.
func ValidateSections(markdown string) bool {
	for _, section := range RequiredSections {
		if !strings.Contains(markdown, "## "+section) {
			return false
		}
	}
	return true
}

// SplitFeatures breaks the free-text features answer into one item per
// bullet. Newlines separate items; a single line falls back to comma
// separation.
func SplitFeatures(answer string) []string {
	lines := strings.Split(answer, "\n")
	items := make([]string, 0, len(lines))
	for _, line := range lines {
		item := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
		if item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 1 && strings.Contains(items[0], ",") {
		parts := strings.Split(items[0], ",")
		items = items[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
	}
	return items
}

// ParseFeatureTasks extracts task titles from the Features section of a
// rendered document, one per bullet.
func ParseFeatureTasks(markdown string) []string {
	var tasks []string
	inFeatures := false
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			inFeatures = strings.EqualFold(strings.TrimSpace(trimmed[3:]), "Features")
			continue
		}
		if !inFeatures {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			if title := strings.TrimSpace(trimmed[2:]); title != "" {
				tasks = append(tasks, title)
			}
		}
	}
	return tasks
}
