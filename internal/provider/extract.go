package provider

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// Extract reads the string at a gjson path in a JSON document. Array indices
// may be written as "choices.0" or "choices[0]".
func Extract(body []byte, path string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errors.New("decode response: invalid JSON")
	}

	result := gjson.GetBytes(body, normalizePath(path))
	if !result.Exists() {
		return "", fmt.Errorf("response has no value at %q", path)
	}
	if result.Type != gjson.String {
		return "", fmt.Errorf("value at %q is not a string", path)
	}
	return result.Str, nil
}

func normalizePath(path string) string {
	path = indexPattern.ReplaceAllString(strings.TrimSpace(path), ".$1")
	return strings.TrimPrefix(path, ".")
}
