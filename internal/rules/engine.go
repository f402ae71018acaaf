// Package rules applies deterministic text substitutions to transcripts
// before they reach the AI step.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultLoopLimit = 30

// File is the on-disk YAML layout.
//
//	loop_limit: 30
//	rules:
//	  - from: pull request
//	    to: PR
//	  - pattern: '\bdeep\s*gram\b'
//	    replace: Deepgram
//	    global: true
//	  - expr: 's/colour/color/g'
type File struct {
	LoopLimit int    `yaml:"loop_limit"`
	Rules     []Rule `yaml:"rules"`
}

// Rule is one substitution. Exactly one of From, Pattern or Expr is set.
// Literal rules match case-insensitively; regex rules do too unless
// CaseSensitive is set.
type Rule struct {
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	Pattern       string `yaml:"pattern,omitempty"`
	Replace       string `yaml:"replace,omitempty"`
	Global        bool   `yaml:"global,omitempty"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty"`

	Expr string `yaml:"expr,omitempty"`
}

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// Engine applies compiled substitutions until the text is stable.
type Engine struct {
	rules     []compiledRule
	loopLimit int
}

// Load reads a YAML rules file. A blank path or a missing file yields an
// engine that returns text unchanged.
func Load(path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return &Engine{loopLimit: defaultLoopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Engine{loopLimit: defaultLoopLimit}, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	engine, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return engine, nil
}

// Parse compiles YAML rules.
func Parse(contents []byte) (*Engine, error) {
	var file File
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, err
	}
	return New(file)
}

// New compiles an in-memory rule set.
func New(file File) (*Engine, error) {
	loopLimit := file.LoopLimit
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}

	compiled := make([]compiledRule, 0, len(file.Rules))
	for index, rule := range file.Rules {
		c, err := compile(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", index+1, err)
		}
		compiled = append(compiled, c)
	}
	return &Engine{rules: compiled, loopLimit: loopLimit}, nil
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply transforms text deterministically.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}

	return "", fmt.Errorf("rules did not converge after %d passes", e.loopLimit)
}

func compile(rule Rule) (compiledRule, error) {
	set := 0
	for _, v := range []string{rule.From, rule.Pattern, rule.Expr} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of from, pattern or expr must be set")
	}

	switch {
	case rule.From != "":
		return compileLiteral(rule.From, rule.To)
	case rule.Pattern != "":
		return compileRegex(rule.Pattern, rule.Replace, regexFlags{
			ignoreCase: !rule.CaseSensitive,
			global:     rule.Global,
		})
	default:
		return parseSedExpr(strings.TrimSpace(rule.Expr))
	}
}
