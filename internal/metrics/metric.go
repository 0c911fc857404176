// Package metrics defines the typed, dotted-path metric namespace
// (component J) that the evaluator (component I) runs expressions
// against: a process-wide, immutable table of MetricDefs, each with an
// extractor from a PackageFacts record and a default value used when
// the extractor has nothing to say.
package metrics

import (
	"time"

	"aprz.dev/aprz/internal/facts"
)

// ValueKind discriminates a MetricValue's concrete type.
type ValueKind int

const (
	KindUInt ValueKind = iota
	KindFloat
	KindBoolean
	KindString
	KindDateTime
	KindList
)

// Value is a typed metric value. Exactly one field is meaningful,
// selected by Kind — a tagged union rather than six independently
// optional fields.
type Value struct {
	Kind     ValueKind
	UInt     uint64
	Float    float64
	Bool     bool
	String   string
	DateTime time.Time
	List     []Value
}

func UInt(v uint64) Value        { return Value{Kind: KindUInt, UInt: v} }
func Float(v float64) Value      { return Value{Kind: KindFloat, Float: v} }
func Bool(v bool) Value          { return Value{Kind: KindBoolean, Bool: v} }
func String(v string) Value      { return Value{Kind: KindString, String: v} }
func DateTime(v time.Time) Value { return Value{Kind: KindDateTime, DateTime: v} }
func List(v []Value) Value       { return Value{Kind: KindList, List: v} }

// Category groups metrics for documentation and reporting purposes.
type Category int

const (
	CategoryMetadata Category = iota
	CategoryCommunity
	CategoryTrustworthiness
	CategoryDocumentation
	CategoryUsage
	CategoryCodebase
)

// Def describes one metric in the namespace: its dotted name, a human
// description, its category, a function extracting a value from a
// PackageFacts record (returning ok=false when the source data isn't
// present), and a default value substituted when the extractor yields
// nothing — so a metric is never silently absent from the evaluator's
// context, only defaulted.
type Def struct {
	Name        string
	Description string
	Category    Category
	Extractor   func(pf *facts.PackageFacts) (Value, bool)
	Default     func() (Value, bool)
}

// Metric pairs a Def with the value resolved for one package.
type Metric struct {
	Def   *Def
	Value *Value // nil if neither the extractor nor the default produced one
}

func (m Metric) Name() string { return m.Def.Name }
