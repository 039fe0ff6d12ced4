// Package moa turns dataset specs into MOA task invocations.
//
// The stream part of a task is modelled as an expression tree: a Generator
// leaf for a single classification function, and a ConceptDrift node joining
// a source stream to a destination stream around a drift point. Rendering to
// MOA's option syntax is a separate, final step.
package moa

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/moagen/internal/dataset"
)

// Expr is a stream expression: *Generator or *ConceptDrift.
type Expr interface {
	render(b *strings.Builder)
}

// Generator is a single generator configured with one classification function.
type Generator struct {
	Class    string
	Function int
}

// ConceptDrift wraps a source stream that drifts into Destination, centred on
// Position over Width samples.
type ConceptDrift struct {
	Source      Expr
	Destination Expr
	Position    int
	Width       int
}

func (g *Generator) render(b *strings.Builder) {
	fmt.Fprintf(b, "generators.%s -f %d", g.Class, g.Function)
}

func (d *ConceptDrift) render(b *strings.Builder) {
	b.WriteString("ConceptDriftStream -s (")
	d.Source.render(b)
	b.WriteString(") -d (")
	d.Destination.render(b)
	fmt.Fprintf(b, ") -p %d -w %d", d.Position, d.Width)
}

// Build returns the stream expression for s. With k functions the result
// nests k-1 ConceptDrift nodes to the left: the outermost node carries the
// last drift and the last function, its source is the expression for the
// first k-1 functions.
func Build(s dataset.Spec) Expr {
	class := s.Generator().Class
	functions := s.Functions()
	if len(functions) == 0 {
		return nil
	}

	var acc Expr = &Generator{Class: class, Function: functions[0]}
	for _, d := range s.Drifts() {
		acc = &ConceptDrift{
			Source:      acc,
			Destination: &Generator{Class: class, Function: d.To},
			Position:    d.Point,
			Width:       d.Width,
		}
	}
	return acc
}

// Render formats an expression in MOA's option syntax, without the
// surrounding "-s (...)".
func Render(e Expr) string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	e.render(&b)
	return b.String()
}

// DriftCount returns the number of ConceptDrift nodes in e.
func DriftCount(e Expr) int {
	switch v := e.(type) {
	case *ConceptDrift:
		return 1 + DriftCount(v.Source) + DriftCount(v.Destination)
	default:
		return 0
	}
}

// Leaves returns the generator leaves of e from left to right.
func Leaves(e Expr) []*Generator {
	switch v := e.(type) {
	case *Generator:
		return []*Generator{v}
	case *ConceptDrift:
		return append(Leaves(v.Source), Leaves(v.Destination)...)
	default:
		return nil
	}
}
