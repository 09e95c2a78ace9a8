// Package actionprog is a concrete implementation of the action-program
// parser and compiler that spec.md §1 treats as external collaborators:
// "the action compiler that encodes a parsed action program into concrete
// forwarding-plane instructions." internal/rowcompile depends only on the
// Parser/Compiler interfaces declared here.
//
// The parser's comma/paren tracking is grounded directly on the teacher's
// ovs/actionparser.go: a bufio.Reader walked rune by rune, with a small
// paren-depth stack so that top-level separators inside nested
// parentheses are not mistaken for action boundaries. OVN action programs
// separate statements with ';' rather than ',', so the separator is the
// only thing that changes.
package actionprog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Call is one parsed action invocation, e.g. "output;" -> Call{Name:
// "output"} or "put_arp(inport, eth.src, arp.spa);" -> Call{Name:
// "put_arp", Args: []string{"inport", "eth.src", "arp.spa"}}.
type Call struct {
	Name string
	Args []string
	Raw  string
}

// Program is an ordered sequence of action calls.
type Program []Call

// ErrInvalidAction is returned when the action text cannot be tokenized.
type ErrInvalidAction struct {
	Text string
}

func (e *ErrInvalidAction) Error() string {
	return fmt.Sprintf("actionprog: invalid action %q", e.Text)
}

type stack []struct{}

func (s *stack) len() int  { return len(*s) }
func (s *stack) push()     { *s = append(*s, struct{}{}) }
func (s *stack) pop() error {
	if s.len() == 0 {
		return fmt.Errorf("actionprog: unmatched ')'")
	}
	*s = (*s)[:s.len()-1]
	return nil
}

// Parse splits text into a Program of top-level ';'-separated calls.
func Parse(text string) (Program, error) {
	r := bufio.NewReader(strings.NewReader(text))
	var prog Program
	var s stack

	for {
		call, raw, err := parseOneCall(r, &s)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		prog = append(prog, call)
		_ = raw
	}

	if s.len() != 0 {
		return nil, &ErrInvalidAction{Text: text}
	}

	return prog, nil
}

func parseOneCall(r *bufio.Reader, s *stack) (Call, string, error) {
	var buf bytes.Buffer

	for {
		ch, _, err := r.ReadRune()
		if err != nil {
			if buf.Len() == 0 {
				return Call{}, "", io.EOF
			}
			break
		}

		if ch == ';' && s.len() == 0 {
			break
		}

		switch ch {
		case '(':
			s.push()
		case ')':
			if err := s.pop(); err != nil {
				return Call{}, "", &ErrInvalidAction{Text: buf.String()}
			}
		}

		buf.WriteRune(ch)
	}

	raw := strings.TrimSpace(buf.String())
	if raw == "" {
		return parseOneCall(r, s)
	}

	call, err := parseCall(raw)
	if err != nil {
		return Call{}, "", err
	}
	return call, raw, nil
}

func parseCall(raw string) (Call, error) {
	open := strings.IndexByte(raw, '(')
	if open == -1 {
		return Call{Name: raw, Raw: raw}, nil
	}
	if !strings.HasSuffix(raw, ")") {
		return Call{}, &ErrInvalidAction{Text: raw}
	}

	name := strings.TrimSpace(raw[:open])
	argStr := raw[open+1 : len(raw)-1]

	var args []string
	if strings.TrimSpace(argStr) != "" {
		for _, a := range splitTopLevel(argStr, ',') {
			args = append(args, strings.TrimSpace(a))
		}
	}

	return Call{Name: name, Args: args, Raw: raw}, nil
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside
// parentheses — needed for calls like eth.dst=aa:bb... inside move()'s
// arguments.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
