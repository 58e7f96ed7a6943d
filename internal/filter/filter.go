// Package filter narrows fetched papers by keyword before dispatch. The
// predicate is pure; deduplication stays with the ledger.
package filter

import (
	"strings"

	"arxivalert/internal/config"
	"arxivalert/internal/domain"
)

// Keyword matches papers whose title or abstract contains any configured
// keyword, case-insensitively. An empty keyword list matches everything.
type Keyword struct {
	title    []string
	abstract []string
}

// New lowers the configured keywords once up front.
func New(cfg config.FilterConfig) Keyword {
	return Keyword{
		title:    lowerAll(cfg.TitleKeywords),
		abstract: lowerAll(cfg.AbstractKeywords),
	}
}

// Match reports whether the paper passes the keyword criteria.
func (k Keyword) Match(p domain.Paper) bool {
	if len(k.title) > 0 && !containsAny(strings.ToLower(p.Title), k.title) {
		return false
	}
	if len(k.abstract) > 0 && !containsAny(strings.ToLower(p.Abstract), k.abstract) {
		return false
	}
	return true
}

// Apply returns the papers passing the predicate, preserving order.
func (k Keyword) Apply(papers []domain.Paper) []domain.Paper {
	if len(k.title) == 0 && len(k.abstract) == 0 {
		return papers
	}
	kept := make([]domain.Paper, 0, len(papers))
	for _, p := range papers {
		if k.Match(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
