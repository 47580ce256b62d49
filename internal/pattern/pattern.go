// Package pattern implements glob matching for tool-name and project-path
// filters. Patterns support '*', '?', character classes and '\' escapes;
// '*' and '?' never cross a '/' separator, so path patterns match
// segment-by-segment.
package pattern

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	MaxTokens    = 50
	MaxWildcards = 10
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenAny
	tokenStar
	tokenClass
)

type runeRange struct {
	lo rune
	hi rune
}

type token struct {
	kind    tokenKind
	lit     rune
	negated bool
	ranges  []runeRange
}

// Validate checks pattern syntax and rejects patterns that exceed the
// token/wildcard complexity limits. Filters call this once at
// construction time so match calls on the hot path cannot fail.
func Validate(pattern string) error {
	segments := strings.Split(filepath.ToSlash(pattern), "/")
	totalTokens := 0
	totalWildcards := 0
	for _, seg := range segments {
		tokens, err := parseSegment(seg)
		if err != nil {
			return err
		}
		totalTokens += len(tokens)
		for _, t := range tokens {
			if t.kind == tokenStar || t.kind == tokenAny {
				totalWildcards++
			}
		}
	}
	if totalTokens > MaxTokens {
		return fmt.Errorf("pattern too complex: %d tokens exceeds limit of %d", totalTokens, MaxTokens)
	}
	if totalWildcards > MaxWildcards {
		return fmt.Errorf("pattern too complex: %d wildcards exceeds limit of %d", totalWildcards, MaxWildcards)
	}
	return nil
}

// Match reports whether name matches pattern. A pattern with fewer or
// more path segments than name never matches.
func Match(pattern, name string) (bool, error) {
	pattern = filepath.ToSlash(pattern)
	name = filepath.ToSlash(name)

	patSegments := strings.Split(pattern, "/")
	nameSegments := strings.Split(name, "/")
	if len(patSegments) != len(nameSegments) {
		return false, nil
	}

	for i := range patSegments {
		ok, err := matchSegment(patSegments[i], nameSegments[i])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// matchSegment runs the segment's token list as a small NFA over the
// input runes; star tokens add epsilon transitions.
func matchSegment(pattern, seg string) (bool, error) {
	tokens, err := parseSegment(pattern)
	if err != nil {
		return false, err
	}
	runes := []rune(seg)

	current := closure(tokens, map[int]struct{}{0: {}})
	for _, r := range runes {
		next := make(map[int]struct{})
		for i := range current {
			if i >= len(tokens) {
				continue
			}
			if tokenMatches(tokens[i], r) {
				advance := i + 1
				if tokens[i].kind == tokenStar {
					advance = i // star consumes and stays
				}
				next[advance] = struct{}{}
			}
		}
		if len(next) == 0 {
			return false, nil
		}
		current = closure(tokens, next)
	}
	_, accepted := current[len(tokens)]
	return accepted, nil
}

func closure(tokens []token, states map[int]struct{}) map[int]struct{} {
	stack := make([]int, 0, len(states))
	for i := range states {
		stack = append(stack, i)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if i < len(tokens) && tokens[i].kind == tokenStar {
			if _, ok := states[i+1]; !ok {
				states[i+1] = struct{}{}
				stack = append(stack, i+1)
			}
		}
	}
	return states
}

func tokenMatches(t token, r rune) bool {
	if r == '/' {
		return t.kind == tokenLiteral && t.lit == '/'
	}
	switch t.kind {
	case tokenLiteral:
		return t.lit == r
	case tokenAny, tokenStar:
		return true
	case tokenClass:
		in := false
		for _, rr := range t.ranges {
			if r >= rr.lo && r <= rr.hi {
				in = true
				break
			}
		}
		if t.negated {
			return !in
		}
		return in
	}
	return false
}

func parseSegment(segment string) ([]token, error) {
	runes := []rune(segment)
	tokens := make([]token, 0, len(runes))

	for i := 0; i < len(runes); {
		ch := runes[i]
		switch ch {
		case '*':
			tokens = append(tokens, token{kind: tokenStar})
			i++
		case '?':
			tokens = append(tokens, token{kind: tokenAny})
			i++
		case '[':
			tok, next, err := parseClass(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		case '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("bad pattern")
			}
			tokens = append(tokens, token{kind: tokenLiteral, lit: runes[i+1]})
			i += 2
		default:
			tokens = append(tokens, token{kind: tokenLiteral, lit: ch})
			i++
		}
	}

	return tokens, nil
}

func parseClass(runes []rune, start int) (token, int, error) {
	i := start + 1
	if i >= len(runes) {
		return token{}, 0, fmt.Errorf("bad pattern")
	}
	negated := false
	if runes[i] == '^' {
		negated = true
		i++
	}

	var ranges []runeRange
	hadItem := false
	closed := false

	for i < len(runes) {
		if runes[i] == ']' && hadItem {
			i++
			closed = true
			break
		}

		lo, next, err := readClassRune(runes, i)
		if err != nil {
			return token{}, 0, err
		}
		i = next

		if i+1 < len(runes) && runes[i] == '-' && runes[i+1] != ']' {
			hi, nextHi, err := readClassRune(runes, i+1)
			if err != nil {
				return token{}, 0, err
			}
			if hi < lo {
				return token{}, 0, fmt.Errorf("bad pattern")
			}
			ranges = append(ranges, runeRange{lo: lo, hi: hi})
			i = nextHi
			hadItem = true
			continue
		}

		ranges = append(ranges, runeRange{lo: lo, hi: lo})
		hadItem = true
	}

	if !closed {
		return token{}, 0, fmt.Errorf("bad pattern")
	}

	return token{kind: tokenClass, negated: negated, ranges: ranges}, i, nil
}

func readClassRune(runes []rune, idx int) (rune, int, error) {
	if idx >= len(runes) {
		return 0, 0, fmt.Errorf("bad pattern")
	}
	if runes[idx] != '\\' {
		return runes[idx], idx + 1, nil
	}
	if idx+1 >= len(runes) {
		return 0, 0, fmt.Errorf("bad pattern")
	}
	return runes[idx+1], idx + 2, nil
}
