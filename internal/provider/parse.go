package provider

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"

	apperrors "talkback/internal/errors"
)

// Parse validates a curl template and returns its descriptor. Variables other
// than the reserved placeholders are substituted from vars after the template
// is split, so a value can never add flags or arguments. Any that remain
// unresolved fail the parse.
func Parse(kind Kind, name string, template string, vars map[string]string) (Descriptor, error) {
	if kind != KindTranscription && kind != KindAI {
		return Descriptor{}, apperrors.NewValidationf("unknown provider kind %q", kind)
	}
	if strings.TrimSpace(name) == "" {
		return Descriptor{}, apperrors.NewValidation("provider name is required")
	}

	if kind == KindTranscription {
		template = strings.ReplaceAll(template, "AUDIO_BASE64", PlaceholderAudio)
	}

	tokens, err := tokenize(template)
	if err != nil {
		return Descriptor{}, apperrors.NewValidationf("invalid template: %v", err)
	}

	sub := &substitution{vars: vars, seen: map[string]bool{}}
	desc, err := fromTokens(tokens, sub.apply)
	if err != nil {
		return Descriptor{}, err
	}
	if err := sub.err(); err != nil {
		return Descriptor{}, err
	}
	desc.Kind = kind
	desc.Name = name

	if err := validate(&desc); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// substitution fills user variables inside already-split template values.
type substitution struct {
	vars    map[string]string
	seen    map[string]bool
	missing []string
}

func (s *substitution) apply(value string) string {
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if isReserved(name) {
			return "{{" + name + "}}"
		}
		if resolved, ok := lookupVar(s.vars, name); ok {
			return resolved
		}
		if !s.seen[name] {
			s.seen[name] = true
			s.missing = append(s.missing, name)
		}
		return match
	})
}

func (s *substitution) err() error {
	if len(s.missing) == 0 {
		return nil
	}
	return apperrors.NewValidationf("unresolved template variables: %s", strings.Join(s.missing, ", "))
}

func lookupVar(vars map[string]string, name string) (string, bool) {
	if value, ok := vars[name]; ok {
		return value, true
	}
	for key, value := range vars {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}

// fromTokens reads curl flags from the raw tokens. Only flag values and the
// URL pass through resolve.
func fromTokens(tokens []string, resolve func(string) string) (Descriptor, error) {
	if len(tokens) == 0 || tokens[0] != "curl" {
		return Descriptor{}, apperrors.NewValidation("template must start with curl")
	}

	var (
		desc   Descriptor
		data   []string
		rawURL string
	)

	next := func(i int, flag string) (string, error) {
		if i+1 >= len(tokens) {
			return "", apperrors.NewValidationf("flag %s requires a value", flag)
		}
		return resolve(tokens[i+1]), nil
	}

	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "-X", "--request":
			v, err := next(i, tok)
			if err != nil {
				return Descriptor{}, err
			}
			desc.Method = strings.ToUpper(v)
			i++
		case "-H", "--header":
			v, err := next(i, tok)
			if err != nil {
				return Descriptor{}, err
			}
			header, err := parseHeader(v)
			if err != nil {
				return Descriptor{}, err
			}
			desc.Headers = append(desc.Headers, header)
			i++
		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii":
			v, err := next(i, tok)
			if err != nil {
				return Descriptor{}, err
			}
			data = append(data, v)
			i++
		case "-F", "--form":
			v, err := next(i, tok)
			if err != nil {
				return Descriptor{}, err
			}
			field, err := parseFormField(v)
			if err != nil {
				return Descriptor{}, err
			}
			desc.Form = append(desc.Form, field)
			i++
		case "--url":
			v, err := next(i, tok)
			if err != nil {
				return Descriptor{}, err
			}
			rawURL = v
			i++
		case "--response-path":
			v, err := next(i, tok)
			if err != nil {
				return Descriptor{}, err
			}
			desc.ResponsePath = strings.TrimSpace(v)
			i++
		case "-s", "--silent", "-S", "--show-error", "-L", "--location", "--compressed", "-k", "--insecure":
			// Transport niceties with no bearing on the request shape.
		default:
			if strings.HasPrefix(tok, "-") {
				return Descriptor{}, apperrors.NewValidationf("unsupported curl flag %s", tok)
			}
			if rawURL != "" {
				return Descriptor{}, apperrors.NewValidation("template contains more than one URL")
			}
			rawURL = resolve(tok)
		}
	}

	desc.URL = rawURL
	desc.Body = strings.Join(data, "&")
	if desc.Method == "" {
		desc.Method = "GET"
		if desc.Body != "" || len(desc.Form) > 0 {
			desc.Method = "POST"
		}
	}
	return desc, nil
}

func parseHeader(raw string) (Header, error) {
	name, value, ok := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Header{}, apperrors.NewValidationf("invalid header %q", raw)
	}
	return Header{Name: name, Value: strings.TrimSpace(value)}, nil
}

func parseFormField(raw string) (FormField, error) {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return FormField{}, apperrors.NewValidationf("invalid form field %q", raw)
	}
	field := FormField{Name: name, Value: value}
	if strings.HasPrefix(value, "@") {
		field.File = true
		field.Value = strings.TrimPrefix(value, "@")
	}
	return field, nil
}

func validate(desc *Descriptor) error {
	if desc.URL == "" {
		return apperrors.NewValidation("template has no URL")
	}
	parsed, err := url.Parse(desc.URL)
	if err != nil {
		return apperrors.NewValidationf("invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return apperrors.NewValidationf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return apperrors.NewValidation("URL has no host")
	}

	switch desc.Method {
	case "GET", "POST", "PUT", "PATCH":
	default:
		return apperrors.NewValidationf("unsupported method %s", desc.Method)
	}

	if desc.Body != "" && len(desc.Form) > 0 {
		return apperrors.NewValidation("template cannot mix --data and --form")
	}

	switch desc.Kind {
	case KindTranscription:
		if !desc.Uses(PlaceholderAudio) {
			return apperrors.NewValidation("transcription template must reference {{AUDIO}}")
		}
		if desc.ResponsePath == "" {
			desc.ResponsePath = DefaultTranscriptionPath
		}
	case KindAI:
		if !desc.Uses(PlaceholderText) && !desc.Uses(PlaceholderMessages) {
			return apperrors.NewValidation("AI template must reference {{TEXT}} or {{MESSAGES}}")
		}
		if desc.ResponsePath == "" {
			desc.ResponsePath = DefaultAIPath
		}
	}
	return nil
}

var lineContinuation = regexp.MustCompile(`\\\r?\n`)

// tokenize splits a shell-style command line. Line continuations are folded
// first; pipes, redirects and command separators are rejected.
func tokenize(input string) ([]string, error) {
	parser := shellwords.NewParser()
	tokens, err := parser.Parse(lineContinuation.ReplaceAllString(input, " "))
	if err != nil {
		return nil, err
	}
	if parser.Position >= 0 {
		return nil, fmt.Errorf("shell operator at offset %d", parser.Position)
	}
	return tokens, nil
}
