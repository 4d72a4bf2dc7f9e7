// Package script cleans generated call scripts down to the agent's turns.
package script

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// speakerPattern matches a one or two word speaker label.
var speakerPattern = regexp.MustCompile(`^[\p{L}][\p{L}\p{N}'.-]*(\s+[\p{L}][\p{L}\p{N}'.-]*)?$`)

const maxLabelLength = 40

// Sanitizer strips customer-side lines from generated scripts.
type Sanitizer struct {
	policy      Policy
	agent       map[string]struct{}
	customer    map[string]struct{}
	affirmative *regexp.Regexp
}

// NewSanitizer compiles a policy.
func NewSanitizer(policy Policy) (*Sanitizer, error) {
	s := &Sanitizer{
		policy:   policy,
		agent:    toSet(policy.AgentLabels),
		customer: toSet(policy.CustomerMarkers),
	}
	if policy.AffirmativePattern != "" {
		re, err := regexp.Compile(policy.AffirmativePattern)
		if err != nil {
			return nil, fmt.Errorf("script: invalid affirmative pattern: %w", err)
		}
		s.affirmative = re
	}
	if s.policy.MinLength < 0 {
		s.policy.MinLength = 0
	}
	if strings.TrimSpace(s.policy.FallbackTemplate) == "" {
		s.policy.FallbackTemplate = DefaultPolicy().FallbackTemplate
	}
	return s, nil
}

// MustDefault returns a sanitizer with the built-in policy.
func MustDefault() *Sanitizer {
	s, err := NewSanitizer(DefaultPolicy())
	if err != nil {
		panic(err)
	}
	return s
}

// Sanitize keeps only agent turns. When nothing usable survives it returns
// the fallback script for the customer, so the result is never empty.
// A result shorter than MinLength is usable only if it carries agent labels.
func (s *Sanitizer) Sanitize(raw, customerName string) string {
	out := s.Filter(raw, customerName)
	if out == "" {
		return s.Fallback(customerName)
	}
	if len(out) < s.policy.MinLength && !s.hasAgentLine(out) {
		return s.Fallback(customerName)
	}
	return out
}

// Filter applies the line rules without the fallback.
func (s *Sanitizer) Filter(raw, customerName string) string {
	fullName := strings.Join(strings.Fields(customerName), " ")
	firstName := ""
	if fields := strings.Fields(customerName); len(fields) > 0 {
		firstName = fields[0]
	}

	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.keep(line, firstName, fullName) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func (s *Sanitizer) keep(line, firstName, fullName string) bool {
	label, labelled := speakerLabel(line)
	if labelled {
		if _, ok := s.agent[strings.ToLower(label)]; ok {
			return true
		}
		if (firstName != "" && strings.EqualFold(label, firstName)) ||
			(fullName != "" && strings.EqualFold(label, fullName)) {
			return false
		}
		if _, ok := s.customer[strings.ToLower(label)]; ok {
			return false
		}
	}
	if s.affirmative != nil && s.affirmative.MatchString(line) {
		return false
	}
	if labelled && s.policy.DropUnknownSpeakers && capitalized(label) {
		return false
	}
	return true
}

// Fallback renders the fallback template for the customer.
func (s *Sanitizer) Fallback(customerName string) string {
	name := "there"
	if fields := strings.Fields(customerName); len(fields) > 0 {
		name = fields[0]
	}
	return strings.ReplaceAll(s.policy.FallbackTemplate, "{name}", name)
}

// Speakable removes agent labels so the text can be read aloud.
func (s *Sanitizer) Speakable(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if label, ok := speakerLabel(line); ok {
			if _, agent := s.agent[strings.ToLower(label)]; agent {
				line = strings.TrimSpace(line[strings.Index(line, ":")+1:])
				line = strings.TrimLeft(line, "*_ ")
			}
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Sanitizer) hasAgentLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if label, ok := speakerLabel(line); ok {
			if _, agent := s.agent[strings.ToLower(label)]; agent {
				return true
			}
		}
	}
	return false
}

// speakerLabel extracts "Label" from "Label: text", tolerating markdown
// emphasis such as "**Label:**".
func speakerLabel(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, "*_#>- ")
	idx := strings.Index(trimmed, ":")
	if idx <= 0 || idx > maxLabelLength {
		return "", false
	}
	label := strings.Trim(trimmed[:idx], "*_ ")
	if !speakerPattern.MatchString(label) {
		return "", false
	}
	return label, true
}

func capitalized(label string) bool {
	for _, word := range strings.Fields(label) {
		r := []rune(word)
		if len(r) == 0 || !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
