// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package deck builds the text input files consumed by the AMBER programs.
//
// A deck accumulates configuration in memory and serializes itself on
// demand. Decks are plain values: they may pass through inconsistent states
// while user code edits them, and they are only checked when written. Every
// deck in this package also round-trips through JSON so that a campaign
// snapshot carries the exact content that will be rendered on resume.
package deck

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Deck is implemented by every input file builder.
//
// Write renders the deck. Writing an unchanged deck twice produces identical
// bytes, but it may also produce auxiliary files next to a named output (see
// AmberDeck), so it is not free of side effects.
type Deck interface {
	Write(w io.Writer) error
}

// WriteFile renders d and replaces the content of path with it. The file
// is left untouched when rendering fails.
func WriteFile(path string, d Deck) error {
	buf := &namedBuffer{name: path}
	if err := d.Write(buf); err != nil {
		return fmt.Errorf("write deck %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("create deck file: %w", err)
	}
	return nil
}

// namedBuffer collects a rendered deck while still reporting the file it
// is destined for, so side files land next to it.
type namedBuffer struct {
	bytes.Buffer
	name string
}

func (b *namedBuffer) Name() string { return b.name }

// ValidationError reports a deck or selection that is internally
// inconsistent at write time.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid deck: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
