package main

import (
	"fmt"
	"regexp"
	"strings"
)

// SelectorKind tells the driver how to evaluate a locator's base selector.
type SelectorKind int

const (
	SelectorCSS SelectorKind = iota
	SelectorXPath
)

func (k SelectorKind) String() string {
	if k == SelectorXPath {
		return "xpath"
	}
	return "css"
}

// Ordinal positions. Positive values are 1-based indices.
const (
	OrdinalAll  = 0
	OrdinalLast = -1
)

// AttrFilter keeps matches whose attribute equals Value, or matches Pattern
// when one is set.
type AttrFilter struct {
	Name    string
	Value   string
	Pattern *regexp.Regexp
}

func (f AttrFilter) matches(value string, present bool) bool {
	if !present {
		return false
	}
	if f.Pattern != nil {
		return f.Pattern.MatchString(value)
	}
	return value == f.Value
}

func (f AttrFilter) String() string {
	if f.Pattern != nil {
		return fmt.Sprintf("[%s~/%s/]", f.Name, f.Pattern.String())
	}
	return fmt.Sprintf("[%s=%q]", f.Name, f.Value)
}

// Locator is an immutable description of how to find an element. Every
// modifier returns a new value; the receiver is never changed.
type Locator struct {
	kind     SelectorKind
	base     string
	scope    *Locator
	text     string
	attr     *AttrFilter
	children []Locator
	ordinal  int
	label    string
}

// LocatorOption configures a locator at build time.
type LocatorOption func(*Locator)

func Inside(scope Locator) LocatorOption {
	return func(l *Locator) {
		s := scope
		l.scope = &s
	}
}

func WithText(text string) LocatorOption {
	return func(l *Locator) { l.text = text }
}

func WithAttr(name, value string) LocatorOption {
	return func(l *Locator) { l.attr = &AttrFilter{Name: name, Value: value} }
}

func WithAttrMatching(name string, pattern *regexp.Regexp) LocatorOption {
	return func(l *Locator) { l.attr = &AttrFilter{Name: name, Pattern: pattern} }
}

func At(ordinal int) LocatorOption {
	return func(l *Locator) { l.ordinal = ordinal }
}

func AsFirst() LocatorOption { return At(1) }

func AsLast() LocatorOption { return At(OrdinalLast) }

func As(label string) LocatorOption {
	return func(l *Locator) { l.label = label }
}

// Build creates a locator from a CSS or XPath selector. Selectors starting
// with "/", "./" or "(" are treated as XPath.
func Build(base string, opts ...LocatorOption) Locator {
	l := Locator{base: base, kind: detectKind(base)}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

func detectKind(selector string) SelectorKind {
	s := strings.TrimSpace(selector)
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "(") {
		return SelectorXPath
	}
	return SelectorCSS
}

func (l Locator) clone() Locator {
	c := l
	if l.children != nil {
		c.children = append([]Locator(nil), l.children...)
	}
	if l.attr != nil {
		a := *l.attr
		c.attr = &a
	}
	return c
}

func (l Locator) with(opts ...LocatorOption) Locator {
	c := l.clone()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (l Locator) Inside(scope Locator) Locator { return l.with(Inside(scope)) }

func (l Locator) WithText(text string) Locator { return l.with(WithText(text)) }

func (l Locator) WithAttr(name, value string) Locator { return l.with(WithAttr(name, value)) }

func (l Locator) At(ordinal int) Locator { return l.with(At(ordinal)) }

func (l Locator) First() Locator { return l.with(AsFirst()) }

func (l Locator) Last() Locator { return l.with(AsLast()) }

func (l Locator) As(label string) Locator { return l.with(As(label)) }

// WithChild keeps only matches that contain an element matching child.
func (l Locator) WithChild(child Locator) Locator {
	c := l.clone()
	c.children = append(c.children, child)
	return c
}

// WithChild is the function form of Locator.WithChild.
func WithChild(ref, child Locator) Locator {
	return ref.WithChild(child)
}

func (l Locator) Kind() SelectorKind { return l.kind }

func (l Locator) Base() string { return l.base }

func (l Locator) Scope() (Locator, bool) {
	if l.scope == nil {
		return Locator{}, false
	}
	return *l.scope, true
}

func (l Locator) Text() string { return l.text }

func (l Locator) Attr() (AttrFilter, bool) {
	if l.attr == nil {
		return AttrFilter{}, false
	}
	return *l.attr, true
}

func (l Locator) Children() []Locator {
	return append([]Locator(nil), l.children...)
}

func (l Locator) Ordinal() int { return l.ordinal }

func (l Locator) IsZero() bool { return l.base == "" }

// Label is the human-readable name used in logs and error messages.
func (l Locator) Label() string {
	if l.label != "" {
		return l.label
	}
	return l.String()
}

func (l Locator) String() string {
	var b strings.Builder
	b.WriteString(l.base)
	if l.text != "" {
		fmt.Fprintf(&b, " with text %q", l.text)
	}
	if l.attr != nil {
		b.WriteString(" ")
		b.WriteString(l.attr.String())
	}
	for _, child := range l.children {
		fmt.Fprintf(&b, " having (%s)", child.String())
	}
	switch {
	case l.ordinal == OrdinalLast:
		b.WriteString(" last")
	case l.ordinal > 0:
		fmt.Fprintf(&b, " #%d", l.ordinal)
	}
	if l.scope != nil {
		fmt.Fprintf(&b, " inside %s", l.scope.String())
	}
	return b.String()
}
