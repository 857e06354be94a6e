package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/nexus/internal/doc"
)

// check lists every way resp misses exp.
func check(exp Expect, resp response) []string {
	var failures []string
	if resp.status != exp.Status {
		failures = append(failures, fmt.Sprintf("status: expected %d, got %d (body %s)", exp.Status, resp.status, truncate(resp.body)))
	}
	if exp.Code != "" {
		if got := errorCode(resp); got != exp.Code {
			failures = append(failures, fmt.Sprintf("code: expected %q, got %q", exp.Code, got))
		}
	}
	if exp.Text != nil && string(resp.body) != *exp.Text {
		failures = append(failures, fmt.Sprintf("text: expected %q, got %q", *exp.Text, truncate(resp.body)))
	}
	for _, sub := range exp.Contains {
		if !strings.Contains(string(resp.body), sub) {
			failures = append(failures, fmt.Sprintf("body does not contain %q", sub))
		}
	}
	if len(exp.Fields) > 0 {
		failures = append(failures, checkFields(exp.Fields, resp.body)...)
	}
	return failures
}

func checkFields(fields map[string]any, body []byte) []string {
	actual, err := doc.ParseObject(body)
	if err != nil {
		return []string{fmt.Sprintf("fields: response is not a JSON object: %v", err)}
	}
	expected, err := doc.FromAny(fields)
	if err != nil {
		return []string{fmt.Sprintf("fields: %v", err)}
	}

	var failures []string
	exp := expected.(doc.Object)
	keys := make([]string, 0, len(exp))
	for k := range exp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			failures = append(failures, fmt.Sprintf("field %q: missing", k))
			continue
		}
		if !subsetMatch(exp[k], got) {
			failures = append(failures, fmt.Sprintf("field %q: expected %s, got %s", k, render(exp[k]), render(got)))
		}
	}
	return failures
}

// subsetMatch compares scalars and arrays exactly (numbers canonically) and
// objects by the expected keys only.
func subsetMatch(expected, actual doc.Value) bool {
	if eo, ok := expected.(doc.Object); ok {
		ao, ok := actual.(doc.Object)
		if !ok {
			return false
		}
		for k, ev := range eo {
			av, ok := ao[k]
			if !ok || !subsetMatch(ev, av) {
				return false
			}
		}
		return true
	}
	return render(expected) == render(actual)
}

func render(v doc.Value) string {
	data, err := doc.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
