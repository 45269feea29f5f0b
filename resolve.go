package main

import (
	"strings"
)

// domNode is the minimal element surface locator resolution needs. The rod
// driver adapts *rod.Element and *rod.Page to it.
type domNode interface {
	Query(kind SelectorKind, selector string) ([]domNode, error)
	Text() (string, error)
	Attribute(name string) (string, bool, error)
	Visible() (bool, error)
}

// resolve finds every node matching loc under root: scope roots first, then
// the base selector within each root, then the text, attribute and child
// filters, then the ordinal. An ordinal past the end yields no nodes.
func resolve(root domNode, loc Locator) ([]domNode, error) {
	roots := []domNode{root}
	if scope, ok := loc.Scope(); ok {
		var err error
		roots, err = resolve(root, scope)
		if err != nil {
			return nil, err
		}
	}

	var matches []domNode
	for _, r := range roots {
		found, err := r.Query(loc.Kind(), loc.Base())
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}

	filtered := matches[:0]
	for _, n := range matches {
		ok, err := matchesFilters(n, loc)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, n)
		}
	}

	return pickOrdinal(filtered, loc.Ordinal()), nil
}

// resolveVisible is resolve restricted to rendered nodes. The ordinal is
// applied after the visibility filter, matching how a user counts elements.
func resolveVisible(root domNode, loc Locator) ([]domNode, error) {
	all, err := resolve(root, loc.At(OrdinalAll))
	if err != nil {
		return nil, err
	}
	visible := make([]domNode, 0, len(all))
	for _, n := range all {
		v, err := n.Visible()
		if err != nil {
			// detached between query and check
			continue
		}
		if v {
			visible = append(visible, n)
		}
	}
	return pickOrdinal(visible, loc.Ordinal()), nil
}

func matchesFilters(n domNode, loc Locator) (bool, error) {
	if text := loc.Text(); text != "" {
		got, err := n.Text()
		if err != nil {
			return false, err
		}
		if !strings.Contains(got, text) {
			return false, nil
		}
	}

	if attr, ok := loc.Attr(); ok {
		value, present, err := n.Attribute(attr.Name)
		if err != nil {
			return false, err
		}
		if !attr.matches(value, present) {
			return false, nil
		}
	}

	for _, child := range loc.Children() {
		found, err := resolve(n, child)
		if err != nil {
			return false, err
		}
		if len(found) == 0 {
			return false, nil
		}
	}

	return true, nil
}

func pickOrdinal(nodes []domNode, ordinal int) []domNode {
	switch {
	case ordinal == OrdinalAll:
		return nodes
	case ordinal == OrdinalLast:
		if len(nodes) == 0 {
			return nil
		}
		return nodes[len(nodes)-1:]
	case ordinal > 0 && ordinal <= len(nodes):
		return nodes[ordinal-1 : ordinal]
	default:
		return nil
	}
}
