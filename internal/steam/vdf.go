// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package steam

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one key of a text KeyValues (VDF/ACF) document: either a string
// value or a block of children.
type Node struct {
	Key      string
	Value    string
	Children []*Node
}

// Child returns the first child with key, compared case-insensitively.
func (n *Node) Child(key string) *Node {
	if n == nil {
		return nil
	}

	for _, c := range n.Children {
		if strings.EqualFold(c.Key, key) {
			return c
		}
	}

	return nil
}

// Lookup walks nested children by keys.
func (n *Node) Lookup(keys ...string) *Node {
	cur := n
	for _, k := range keys {
		cur = cur.Child(k)
		if cur == nil {
			return nil
		}
	}

	return cur
}

// tokenKind classifies lexer output.
type tokenKind uint8

const (
	tokString tokenKind = iota + 1
	tokOpen
	tokClose
	tokEOF
)

// lexer splits KeyValues text into tokens.
type lexer struct {
	r    *bufio.Reader
	line int
}

// next returns the next token, skipping whitespace and // comments.
func (l *lexer) next() (tokenKind, string, error) {
	for {
		c, _, err := l.r.ReadRune()
		if errors.Is(err, io.EOF) {
			return tokEOF, "", nil
		}
		if err != nil {
			return 0, "", err
		}

		switch {
		case c == '\n':
			l.line++
		case c == ' ' || c == '\t' || c == '\r':
		case c == '{':
			return tokOpen, "", nil
		case c == '}':
			return tokClose, "", nil
		case c == '"':
			s, err := l.quoted()
			return tokString, s, err
		case c == '/':
			if n, _ := l.r.Peek(1); len(n) == 1 && n[0] == '/' {
				if _, err := l.r.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
					return 0, "", err
				}
				l.line++
				continue
			}
			return tokString, l.bare(c), nil
		default:
			return tokString, l.bare(c), nil
		}
	}
}

// quoted reads a quoted string body with backslash escapes.
func (l *lexer) quoted() (string, error) {
	var sb strings.Builder
	for {
		c, _, err := l.r.ReadRune()
		if err != nil {
			return "", fmt.Errorf("line %d: unterminated string", l.line+1)
		}

		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			e, _, err := l.r.ReadRune()
			if err != nil {
				return "", fmt.Errorf("line %d: unterminated escape", l.line+1)
			}
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteRune(e)
			}
		case '\n':
			l.line++
			sb.WriteRune(c)
		default:
			sb.WriteRune(c)
		}
	}
}

// bare reads an unquoted token started by first.
func (l *lexer) bare(first rune) string {
	var sb strings.Builder
	sb.WriteRune(first)
	for {
		c, _, err := l.r.ReadRune()
		if err != nil {
			return sb.String()
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '{' || c == '}' || c == '"' {
			_ = l.r.UnreadRune()
			return sb.String()
		}
		sb.WriteRune(c)
	}
}

// ParseVDF decodes a text KeyValues document. The returned root has no key;
// top-level keys are its children.
func ParseVDF(r io.Reader) (*Node, error) {
	l := &lexer{r: bufio.NewReader(r)}
	root := &Node{}
	if err := parseBlock(l, root, true); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	return root, nil
}

// parseBlock reads key/value pairs into parent until "}" or EOF.
func parseBlock(l *lexer, parent *Node, top bool) error {
	for {
		kind, key, err := l.next()
		if err != nil {
			return err
		}

		switch kind {
		case tokEOF:
			if !top {
				return fmt.Errorf("line %d: unexpected end of input", l.line+1)
			}
			return nil
		case tokClose:
			if top {
				return fmt.Errorf("line %d: unexpected }", l.line+1)
			}
			return nil
		case tokOpen:
			return fmt.Errorf("line %d: block without key", l.line+1)
		}

		kind, value, err := l.next()
		if err != nil {
			return err
		}

		node := &Node{Key: key}
		switch kind {
		case tokString:
			node.Value = value
		case tokOpen:
			if err := parseBlock(l, node, false); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: key %q has no value", l.line+1, key)
		}

		parent.Children = append(parent.Children, node)
	}
}
