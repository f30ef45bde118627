package keystore

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Gate performs the user-presence check guarding biometric records.
type Gate interface {
	Verify(ctx context.Context, reason string) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, reason string) error

func (f GateFunc) Verify(ctx context.Context, reason string) error { return f(ctx, reason) }

// AllowAll is a Gate that always passes. It establishes no presence; use
// it only in tests and non-interactive setups that opt out of the check.
var AllowAll Gate = GateFunc(func(context.Context, string) error { return nil })

var isTerminal = func(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }

// TerminalGate asks for confirmation on an interactive terminal. Without a
// terminal it rejects, since presence cannot be established. The answer is
// read from the reader the rest of the application reads its input from,
// so no input is consumed behind the caller's back.
type TerminalGate struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer
}

// NewTerminalGate returns a gate prompting on out. in is only checked for
// being a terminal; lines are read from reader.
func NewTerminalGate(in *os.File, reader *bufio.Reader, out io.Writer) *TerminalGate {
	return &TerminalGate{in: in, reader: reader, out: out}
}

// Verify blocks until the user answers. A context cancelled before the
// prompt rejects without reading.
func (g *TerminalGate) Verify(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBiometricRejected, err)
	}
	if !isTerminal(g.in) {
		return fmt.Errorf("%w: no terminal attached", ErrBiometricRejected)
	}

	fmt.Fprintf(g.out, "Allow access to %s? [y/N]: ", reason)

	line, err := g.reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("%w: %w", ErrBiometricRejected, err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return ErrBiometricRejected
}
