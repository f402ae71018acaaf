// Package provider turns user-supplied curl request templates into validated,
// typed descriptors. Nothing downstream ever re-parses a template.
package provider

import (
	"regexp"
	"strings"
)

// Kind is the boundary a descriptor targets.
type Kind string

const (
	KindTranscription Kind = "stt"
	KindAI            Kind = "ai"
)

// Reserved placeholders filled at call time.
const (
	PlaceholderAudio        = "AUDIO"
	PlaceholderText         = "TEXT"
	PlaceholderSystemPrompt = "SYSTEM_PROMPT"
	PlaceholderMessages     = "MESSAGES"
)

// Default response paths when a template does not name one.
const (
	DefaultTranscriptionPath = "text"
	DefaultAIPath            = "choices.0.message.content"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Header is one request header in template order.
type Header struct {
	Name  string
	Value string
}

// FormField is one multipart field; File fields carry uploaded content.
type FormField struct {
	Name  string
	Value string
	File  bool
}

// Descriptor is a validated provider request template.
type Descriptor struct {
	Kind         Kind
	Name         string
	Method       string
	URL          string
	Headers      []Header
	Body         string
	Form         []FormField
	ResponsePath string
}

// Header returns the first header value with the given name.
func (d Descriptor) Header(name string) (string, bool) {
	for _, h := range d.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// JSONBody reports whether placeholders in the body need JSON string escaping.
func (d Descriptor) JSONBody() bool {
	if value, ok := d.Header("Content-Type"); ok && strings.Contains(strings.ToLower(value), "json") {
		return true
	}
	trimmed := strings.TrimSpace(d.Body)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// Uses reports whether the body or form references a reserved placeholder.
func (d Descriptor) Uses(placeholder string) bool {
	if containsPlaceholder(d.Body, placeholder) {
		return true
	}
	for _, f := range d.Form {
		if containsPlaceholder(f.Value, placeholder) {
			return true
		}
	}
	return false
}

// Render replaces reserved placeholders in s. Unknown names are left as-is;
// validation already guaranteed none remain.
func Render(s string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := values[name]; ok {
			return value
		}
		return match
	})
}

func isReserved(name string) bool {
	switch name {
	case PlaceholderAudio, PlaceholderText, PlaceholderSystemPrompt, PlaceholderMessages:
		return true
	default:
		return false
	}
}

func containsPlaceholder(s string, name string) bool {
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if m[1] == name {
			return true
		}
	}
	return false
}
