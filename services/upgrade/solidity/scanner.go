// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package solidity extracts contract definitions and state variable
// declarations, with 1-based source spans, from Solidity source text.
//
// This is not a compiler front end. The scanner understands exactly enough
// of the grammar to find contract blocks and the declarations at their top
// level: comments and string literals are blanked positionally, nested
// blocks (functions, modifiers, structs) are skipped by brace tracking,
// and every semicolon-terminated statement at contract depth that is not
// introduced by a declaration keyword is read as a state variable.
// Statements it cannot classify become scan issues, never errors.
package solidity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DefaultMaxSourceSize bounds how much source the scanner will accept.
const DefaultMaxSourceSize = 4 * 1024 * 1024

// ErrSourceTooLarge is returned when a source file exceeds the configured
// size limit.
var ErrSourceTooLarge = errors.New("source file too large")

// Option configures a Scanner.
type Option func(*Scanner)

// WithMaxSourceSize overrides the source size limit.
func WithMaxSourceSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// Scanner extracts contract and state variable declarations from source.
//
// Thread Safety: Safe for concurrent use. The scanner holds configuration
// only; all scan state is per-call.
type Scanner struct {
	maxSize int
}

// NewScanner creates a scanner with the given options.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{maxSize: DefaultMaxSourceSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parse scans one Solidity source unit.
//
// # Description
//
// Produces every contract, abstract contract, library, and interface block
// in the source together with the state variable declarations at its top
// level. Spans are 1-based and inclusive, anchored to the original bytes.
//
// # Inputs
//
//   - ctx: Context for cancellation, checked between contract blocks.
//   - src: Raw source bytes.
//   - path: Display path recorded on the result.
//
// # Outputs
//
//   - *File: Scan result. Unclassifiable statements land in Issues.
//   - error: Non-nil only for cancellation or an oversized source.
func (s *Scanner) Parse(ctx context.Context, src []byte, path string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(src) > s.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrSourceTooLarge, path, len(src), s.maxSize)
	}

	sc := &scanState{
		src:   src,
		lines: lineStarts(src),
		file:  &File{Path: path},
	}
	sc.tokens = tokenize(blankCommentsAndStrings(src))

	for sc.i < len(sc.tokens) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !sc.nextContract() {
			break
		}
	}
	return sc.file, nil
}

// ParseFile reads and scans a source file from disk.
func (s *Scanner) ParseFile(ctx context.Context, path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	return s.Parse(ctx, src, path)
}

// =============================================================================
// Lexing
// =============================================================================

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokPunct
)

// token positions are byte offsets into the original source; end is
// exclusive.
type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

// blankCommentsAndStrings replaces comment and string literal bytes with
// spaces, preserving length and newlines so token offsets stay anchored to
// the original source.
func blankCommentsAndStrings(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)

	const (
		code = iota
		lineComment
		blockComment
		stringLit
	)
	state := code
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case code:
			switch {
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = lineComment
				out[i] = ' '
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = blockComment
				out[i] = ' '
			case c == '"' || c == '\'':
				state = stringLit
				quote = c
				out[i] = ' '
			}
		case lineComment:
			if c == '\n' {
				state = code
			} else {
				out[i] = ' '
			}
		case blockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				state = code
			} else if c != '\n' {
				out[i] = ' '
			}
		case stringLit:
			switch {
			case c == '\\' && i+1 < len(out):
				out[i] = ' '
				if out[i+1] != '\n' {
					out[i+1] = ' '
				}
				i++
			case c == quote:
				out[i] = ' '
				state = code
			case c != '\n':
				out[i] = ' '
			}
		}
	}
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func tokenize(clean []byte) []token {
	tokens := make([]token, 0, len(clean)/6)
	for i := 0; i < len(clean); {
		c := clean[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(clean) && isIdentPart(clean[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(clean[i:j]), start: i, end: j})
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(clean) && (isIdentPart(clean[j]) || clean[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(clean[i:j]), start: i, end: j})
			i = j
		default:
			tokens = append(tokens, token{kind: tokPunct, text: string(c), start: i, end: i + 1})
			i++
		}
	}
	return tokens
}

// lineStarts returns the byte offset of each line start, for offset to
// line/column conversion.
func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// =============================================================================
// Parsing
// =============================================================================

// contractKeywords introduce a definition block the scanner descends into.
var contractKeywords = map[string]bool{
	"contract":  true,
	"library":   true,
	"interface": true,
}

// declKeywords introduce contract members that are not state variables.
var declKeywords = map[string]bool{
	"function":    true,
	"modifier":    true,
	"constructor": true,
	"event":       true,
	"error":       true,
	"using":       true,
	"struct":      true,
	"enum":        true,
	"type":        true,
	"receive":     true,
	"fallback":    true,
}

// modifierKeywords may appear between a state variable's type and name.
var modifierKeywords = map[string]bool{
	"public":    true,
	"private":   true,
	"internal":  true,
	"constant":  true,
	"immutable": true,
	"override":  true,
	"payable":   true,
	"transient": true,
}

type scanState struct {
	src    []byte
	lines  []int
	tokens []token
	i      int
	file   *File
}

func (s *scanState) pointAt(offset int) SourcePoint {
	line := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > offset })
	return SourcePoint{Line: line, Column: offset - s.lines[line-1] + 1}
}

func (s *scanState) issue(offset int, format string, args ...any) {
	s.file.Issues = append(s.file.Issues, ScanIssue{
		Message: fmt.Sprintf(format, args...),
		Line:    s.pointAt(offset).Line,
	})
}

// nextContract advances to the next definition keyword at file depth and
// scans its block. Returns false when the token stream is exhausted.
func (s *scanState) nextContract() bool {
	depth := 0
	for ; s.i < len(s.tokens); s.i++ {
		tok := s.tokens[s.i]
		if tok.kind == tokPunct {
			switch tok.text {
			case "{":
				depth++
			case "}":
				if depth > 0 {
					depth--
				}
			}
			continue
		}
		if depth != 0 || tok.kind != tokIdent {
			continue
		}
		if tok.text == "abstract" {
			// The contract keyword follows; the span starts here.
			if s.i+1 < len(s.tokens) && s.tokens[s.i+1].text == "contract" {
				start := tok
				s.i += 2
				s.scanContract(start)
				return true
			}
			continue
		}
		if contractKeywords[tok.text] {
			start := tok
			s.i++
			s.scanContract(start)
			return true
		}
	}
	return false
}

// scanContract consumes one definition block. On entry s.i sits on the
// name identifier (or whatever follows the keyword in broken source).
func (s *scanState) scanContract(start token) {
	if s.i >= len(s.tokens) || s.tokens[s.i].kind != tokIdent {
		s.issue(start.start, "definition without a name")
		return
	}
	def := ContractDefinition{Name: s.tokens[s.i].text}
	s.i++

	// Skip the inheritance list up to the body brace.
	for s.i < len(s.tokens) && s.tokens[s.i].text != "{" {
		if s.tokens[s.i].text == ";" || s.tokens[s.i].text == "}" {
			// Forward declaration or broken source; nothing to scan.
			s.issue(start.start, "definition %s has no body", def.Name)
			return
		}
		s.i++
	}
	if s.i >= len(s.tokens) {
		s.issue(start.start, "definition %s has no body", def.Name)
		return
	}
	s.i++ // past '{'

	var chunk []token
	closing := -1
	depth := 1
	for s.i < len(s.tokens) {
		tok := s.tokens[s.i]
		if tok.kind == tokPunct {
			switch tok.text {
			case "{":
				// An initializer may legitimately contain braces
				// (named-argument calls); a chunk without '=' that grows a
				// block is a member body, which makes it not a variable.
				hasAssign := chunkHasAssign(chunk)
				s.skipBlock()
				if !hasAssign {
					chunk = chunk[:0]
				}
				continue
			case "}":
				closing = s.i
				s.i++
				depth--
				if depth == 0 {
					// Done with this contract.
					if len(chunk) > 0 {
						s.issue(chunk[0].start, "unterminated statement in %s", def.Name)
					}
					def.Span = SourceSpan{Start: s.pointAt(start.start), End: s.pointAt(closing)}
					s.file.Contracts = append(s.file.Contracts, def)
					return
				}
				continue
			case ";":
				s.finishStatement(&def, chunk, tok)
				chunk = chunk[:0]
				s.i++
				continue
			}
		}
		chunk = append(chunk, tok)
		s.i++
	}

	// Ran off the end of the file inside the body.
	s.issue(start.start, "definition %s is not closed", def.Name)
	end := len(s.src) - 1
	if end < 0 {
		end = 0
	}
	def.Span = SourceSpan{Start: s.pointAt(start.start), End: s.pointAt(end)}
	s.file.Contracts = append(s.file.Contracts, def)
}

// skipBlock consumes a balanced brace block. On entry s.i sits on '{'.
func (s *scanState) skipBlock() {
	depth := 0
	for ; s.i < len(s.tokens); s.i++ {
		switch s.tokens[s.i].text {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				s.i++
				return
			}
		}
	}
}

func chunkHasAssign(chunk []token) bool {
	for i, tok := range chunk {
		if tok.kind != tokPunct || tok.text != "=" {
			continue
		}
		// Exclude =>, ==, <=, >=, != arrows and comparisons.
		if i+1 < len(chunk) && chunk[i+1].text == ">" && chunk[i+1].start == tok.end {
			continue
		}
		prev := byte(0)
		if i > 0 && len(chunk[i-1].text) == 1 && chunk[i-1].end == tok.start {
			prev = chunk[i-1].text[0]
		}
		if prev == '=' || prev == '<' || prev == '>' || prev == '!' {
			continue
		}
		if i+1 < len(chunk) && chunk[i+1].text == "=" && chunk[i+1].start == tok.end {
			continue
		}
		return true
	}
	return false
}

// finishStatement classifies one semicolon-terminated statement at
// contract depth.
func (s *scanState) finishStatement(def *ContractDefinition, chunk []token, semi token) {
	if len(chunk) == 0 {
		return
	}
	first := chunk[0]
	if first.kind == tokIdent && declKeywords[first.text] {
		return
	}
	v, ok := s.parseVariable(chunk, semi)
	if !ok {
		s.issue(first.start, "statement in %s does not scan as a state variable", def.Name)
		return
	}
	def.Variables = append(def.Variables, v)
}

// parseVariable reads `<type> <modifiers...> <name> [= ...]` from a chunk.
func (s *scanState) parseVariable(chunk []token, semi token) (VariableDeclaration, bool) {
	var v VariableDeclaration

	typeEnd, ok := parseTypeExpr(chunk)
	if !ok {
		return v, false
	}
	v.TypeText = normalizeWS(string(s.src[chunk[0].start:chunk[typeEnd].end]))

	for i := typeEnd + 1; i < len(chunk); i++ {
		tok := chunk[i]
		if tok.text == "=" {
			break
		}
		if tok.kind != tokIdent {
			if tok.text == "(" {
				// override(Base) style parenthesized lists.
				i = skipBalanced(chunk, i, "(", ")")
			}
			continue
		}
		if modifierKeywords[tok.text] {
			switch tok.text {
			case "constant":
				v.Constant = true
			case "immutable":
				v.Immutable = true
			}
			continue
		}
		v.Name = tok.text
	}
	if v.Name == "" {
		return v, false
	}
	v.Span = SourceSpan{Start: s.pointAt(chunk[0].start), End: s.pointAt(semi.end - 1)}
	return v, true
}

// parseTypeExpr returns the index of the last token of the leading type
// expression: an identifier path with array suffixes, or a mapping type
// with balanced parentheses.
func parseTypeExpr(chunk []token) (int, bool) {
	if len(chunk) == 0 || chunk[0].kind != tokIdent {
		return 0, false
	}
	i := 0
	if chunk[0].text == "mapping" {
		if len(chunk) < 2 || chunk[1].text != "(" {
			return 0, false
		}
		i = skipBalanced(chunk, 1, "(", ")")
		if i >= len(chunk) {
			return 0, false
		}
	} else {
		for i+2 < len(chunk) && chunk[i+1].text == "." && chunk[i+2].kind == tokIdent {
			i += 2
		}
	}
	// Array suffixes, possibly nested: uint256[], uint256[4][], Token[2].
	for i+1 < len(chunk) && chunk[i+1].text == "[" {
		i = skipBalanced(chunk, i+1, "[", "]")
		if i >= len(chunk) {
			return 0, false
		}
	}
	return i, true
}

// skipBalanced returns the index of the token closing the bracket opened
// at from. When unbalanced it returns len(chunk).
func skipBalanced(chunk []token, from int, open, close string) int {
	depth := 0
	for i := from; i < len(chunk); i++ {
		switch chunk[i].text {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(chunk)
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
