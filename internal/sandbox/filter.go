package sandbox

import (
	"regexp"
	"strings"

	"github.com/schaermu/sandboxsync/internal/session"
)

const optFilter = "filter"

var listSeparator = regexp.MustCompile(`[,;]`)

// splitList splits a member list on ',' or ';'. Trailing empty tokens are
// dropped; empty tokens in the middle are kept.
func splitList(list string) []string {
	if list == "" {
		return nil
	}
	tokens := listSeparator.Split(list, -1)
	for len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// BuildFilter compiles include and exclude member lists into filter
// options. Include tokens are OR-combined into one filter; each exclude
// token becomes its own negated filter. Empty exclude tokens are skipped.
func BuildFilter(includeList, excludeList string) []session.Option {
	var opts []session.Option

	if include := splitList(includeList); len(include) > 0 {
		var sb strings.Builder
		for i, token := range include {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("file:")
			sb.WriteString(token)
		}
		opts = append(opts, session.Value(optFilter, sb.String()))
	}

	for _, token := range splitList(excludeList) {
		if token == "" {
			continue
		}
		opts = append(opts, session.Value(optFilter, "!file:"+token))
	}
	return opts
}
