package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type literalRule struct {
	replacement string
	re          *regexp.Regexp
}

func compileLiteral(from, to string) (compiledRule, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{replacement: strings.TrimSpace(to), re: re}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexFlags struct {
	ignoreCase bool
	global     bool
	multiLine  bool
	dotAll     bool
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func compileRegex(pattern, replacement string, flags regexFlags) (compiledRule, error) {
	prefix := ""
	if flags.ignoreCase {
		prefix += "i"
	}
	if flags.multiLine {
		prefix += "m"
	}
	if flags.dotAll {
		prefix += "s"
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: flags.global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringIndex(input)
	if loc == nil {
		return input, false
	}

	segment := input[loc[0]:loc[1]]
	replaced := r.re.ReplaceAllString(segment, r.replacement)
	output := input[:loc[0]] + replaced + input[loc[1]:]
	return output, output != input
}

// parseSedExpr compiles s/pattern/replacement/flags. Any non-alphanumeric
// delimiter works; matching is case-insensitive unless flag I is given.
func parseSedExpr(expr string) (compiledRule, error) {
	if len(expr) < 2 || expr[0] != 's' || isAlphaNumericOrSpace(expr[1]) {
		return nil, errors.New("expr must look like s/pattern/replacement/flags")
	}
	delim := expr[1]

	pattern, pos, err := parseDelimited(expr, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(expr, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	flags := regexFlags{ignoreCase: true}
	for _, flag := range strings.TrimSpace(expr[pos:]) {
		switch flag {
		case 'i':
			flags.ignoreCase = true
		case 'I':
			flags.ignoreCase = false
		case 'g':
			flags.global = true
		case 'm':
			flags.multiLine = true
		case 's':
			flags.dotAll = true
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	return compileRegex(pattern, replacement, flags)
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			// An escaped delimiter is literal; other escapes pass through to regexp.
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isAlphaNumericOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}
