// Package validation evaluates configured field rules against report
// documents. Rules are compiled once at transition init; a malformed rule is
// a configuration error, never a per-change failure.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openchw/sentry/internal/messages"
	"github.com/openchw/sentry/internal/record"
)

// Config is the validations block of a transition's configuration.
type Config struct {
	JoinResponses bool   `json:"join_responses"`
	List          []Rule `json:"list"`
}

// Rule is one configured field rule. The rule expression supports
// `regex("...")`, `required`, `integer`, `lenMin(n)` and `lenMax(n)`,
// joined with `&&`.
type Rule struct {
	Property string               `json:"property"`
	Rule     string               `json:"rule"`
	Messages []messages.Localized `json:"message"`
}

// Failure is one failed rule: the offending property and the resolved
// message to record on the document.
type Failure struct {
	Property string
	Message  string
}

// Compiled holds a rule set ready for evaluation.
type Compiled struct {
	rules []compiledRule
}

type compiledRule struct {
	property string
	message  messages.Template
	checks   []check
}

type check func(value string) bool

var termPattern = regexp.MustCompile(`^(\w+)(?:\((.*)\))?$`)

// Compile parses every rule in the config. Returns an error on the first
// malformed rule expression.
func Compile(cfg *Config) (*Compiled, error) {
	if cfg == nil || len(cfg.List) == 0 {
		return &Compiled{}, nil
	}

	compiled := &Compiled{rules: make([]compiledRule, 0, len(cfg.List))}
	for _, rule := range cfg.List {
		checks, err := compileExpression(rule.Rule)
		if err != nil {
			return nil, fmt.Errorf("rule for %q: %w", rule.Property, err)
		}
		compiled.rules = append(compiled.rules, compiledRule{
			property: rule.Property,
			message:  messages.Template{Messages: rule.Messages},
			checks:   checks,
		})
	}
	return compiled, nil
}

// Len reports the number of compiled rules.
func (c *Compiled) Len() int {
	return len(c.rules)
}

// Validate evaluates every rule against the document's fields and returns
// one failure per failing rule, in rule order. Messages are resolved for
// the given locale.
func (c *Compiled) Validate(doc *record.Doc, locale string) []Failure {
	var failures []Failure
	for _, rule := range c.rules {
		value := fieldValue(doc, rule.property)
		if passes(rule.checks, value) {
			continue
		}
		failures = append(failures, Failure{
			Property: rule.property,
			Message:  rule.message.Content(locale),
		})
	}
	return failures
}

func passes(checks []check, value string) bool {
	for _, chk := range checks {
		if !chk(value) {
			return false
		}
	}
	return true
}

// fieldValue extracts a field as a string; numeric values are rendered so
// rules like regex("^[0-9]+$") apply to either representation.
func fieldValue(doc *record.Doc, property string) string {
	if doc == nil || doc.Fields == nil {
		return ""
	}
	v, ok := doc.Fields[property]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// compileExpression parses a `&&`-joined rule expression into checks.
func compileExpression(expr string) ([]check, error) {
	terms := strings.Split(expr, "&&")
	checks := make([]check, 0, len(terms))
	for _, term := range terms {
		chk, err := compileTerm(strings.TrimSpace(term))
		if err != nil {
			return nil, err
		}
		checks = append(checks, chk)
	}
	return checks, nil
}

func compileTerm(term string) (check, error) {
	m := termPattern.FindStringSubmatch(term)
	if m == nil {
		return nil, fmt.Errorf("unparseable rule term %q", term)
	}
	name, arg := m[1], m[2]

	switch name {
	case "regex":
		pattern, err := unquote(arg)
		if err != nil {
			return nil, fmt.Errorf("regex term %q: %w", term, err)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("regex term %q: %w", term, err)
		}
		return re.MatchString, nil

	case "required":
		return func(v string) bool { return v != "" }, nil

	case "integer":
		return func(v string) bool {
			_, err := strconv.ParseInt(v, 10, 64)
			return err == nil
		}, nil

	case "lenMin":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("lenMin term %q: %w", term, err)
		}
		return func(v string) bool { return len(v) >= n }, nil

	case "lenMax":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("lenMax term %q: %w", term, err)
		}
		return func(v string) bool { return len(v) <= n }, nil

	default:
		return nil, fmt.Errorf("unknown rule term %q", term)
	}
}

func unquote(arg string) (string, error) {
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return arg[1 : len(arg)-1], nil
	}
	return "", fmt.Errorf("expected quoted argument, got %q", arg)
}
