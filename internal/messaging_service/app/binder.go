package app

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

// BindResult holds the resolved template parameters of a send.
type BindResult struct {
	// Global are the caller's parameters keyed by variable name.
	Global map[string]string
	// Recipients is aligned with the recipients passed to Bind.
	Recipients []map[string]string
	Warnings   []string
}

// TemplateVariables returns the declared variables of tpl, falling back to the body placeholders.
func TemplateVariables(tpl *coredomain.Template) []string {
	if len(tpl.Variables) > 0 {
		return tpl.Variables
	}
	return coredomain.Placeholders(tpl.Body)
}

// Bind resolves every template variable for every recipient.
//
// Global parameters may be keyed by variable name or by 1-based position. Without mappings
// every declared variable needs a global value. With mappings, a mapped variable is read from
// the recipient payload and falls back to its fallback value; an unmapped one still needs a
// global value. Problems that would leave a variable unbound return a *ParameterError, anything
// else becomes a warning.
func Bind(tpl *coredomain.Template, global map[string]string, mappings []coredomain.DataMapping, recipients []coredomain.Recipient) (*BindResult, error) {
	vars := TemplateVariables(tpl)
	res := &BindResult{Global: make(map[string]string, len(vars))}

	var unknown []string
	for _, key := range sortedKeys(global) {
		name, ok := variableFor(key, vars)
		if !ok {
			unknown = append(unknown, key)
			res.Warnings = append(res.Warnings, fmt.Sprintf("parameter %q does not match any template variable and was ignored", key))
			continue
		}
		if v := strings.TrimSpace(global[key]); v != "" {
			res.Global[name] = global[key]
		}
	}

	mapped := make(map[string]coredomain.DataMapping, len(mappings))
	for _, m := range mappings {
		name, ok := variableFor(m.VariableName, vars)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("mapping for %q does not match any template variable and was ignored", m.VariableName))
			continue
		}
		m.VariableName = name
		mapped[name] = m
	}

	var missing []string
	for _, v := range vars {
		if _, ok := mapped[v]; ok {
			continue
		}
		if _, ok := res.Global[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return nil, &coredomain.ParameterError{Missing: missing, Unknown: unknown, Suggested: suggest(vars, res.Global)}
	}

	emptyCount := make(map[string]int)
	res.Recipients = make([]map[string]string, len(recipients))
	for i, rec := range recipients {
		params := make(map[string]string, len(vars))
		for _, v := range vars {
			m, ok := mapped[v]
			if !ok {
				params[v] = res.Global[v]
				continue
			}
			value, found := rec.Lookup(m.DataField)
			if !found {
				value = m.FallbackValue
			}
			if value == "" {
				emptyCount[v]++
			}
			params[v] = value
		}
		res.Recipients[i] = params
	}
	for _, v := range vars {
		if n := emptyCount[v]; n > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("variable %q resolved to an empty value for %d recipient(s)", v, n))
		}
	}
	return res, nil
}

// variableFor maps a parameter key to a declared variable, by name first and then by position.
func variableFor(key string, vars []string) (string, bool) {
	key = strings.TrimSpace(key)
	if slices.Contains(vars, key) {
		return key, true
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(vars) {
		return vars[n-1], true
	}
	return "", false
}

// suggest builds a complete parameter set the caller can send back, keeping values already given.
func suggest(vars []string, given map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		if val, ok := given[v]; ok {
			out[v] = val
			continue
		}
		out[v] = "<" + v + ">"
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
