// Package filter applies jq expressions to decoded JSON response bodies.
package filter

import (
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// NormalizeExpression fixes shell-escaped operators in jq expressions.
// Zsh escapes ! to \! even in single quotes, breaking operators like !=.
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(expr, `\!`, `!`)
}

// Compile parses expr once so it can be run against many inputs.
func Compile(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(NormalizeExpression(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return code, nil
}

// Run executes compiled code against data.
func Run(code *gojq.Code, data any) (any, error) {
	iter := code.Run(data)

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}
