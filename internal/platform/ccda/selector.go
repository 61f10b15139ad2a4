package ccda

import (
	"fmt"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Selector is a compiled XPath expression that may be evaluated from many
// goroutines. A compiled xpath.Expr keeps iteration state, so each evaluation
// borrows its own copy from a pool.
type Selector struct {
	src  string
	pool sync.Pool
}

// CompileSelector compiles src with the given prefix to namespace URI bindings.
func CompileSelector(src string, ns map[string]string) (*Selector, error) {
	expr, err := xpath.CompileWithNS(src, ns)
	if err != nil {
		return nil, err
	}
	s := &Selector{src: src}
	s.pool.New = func() interface{} {
		// src already compiled once with the same bindings.
		e, _ := xpath.CompileWithNS(src, ns)
		return e
	}
	s.pool.Put(expr)
	return s, nil
}

// MustCompileSelector compiles src against Namespaces and panics on failure.
// It is meant for package-level selectors.
func MustCompileSelector(src string) *Selector {
	s, err := CompileSelector(src, Namespaces)
	if err != nil {
		panic(fmt.Sprintf("ccda: compile %q: %v", src, err))
	}
	return s
}

// String returns the selector source.
func (s *Selector) String() string { return s.src }

// Evaluate evaluates the selector with node as the context node. Node-set
// results are returned as []*xmlquery.Node in document order; other results
// are returned as produced by the expression (string, float64 or bool).
func (s *Selector) Evaluate(node *xmlquery.Node) (result interface{}, err error) {
	if node == nil {
		return nil, fmt.Errorf("ccda: no context node")
	}

	expr := s.pool.Get().(*xpath.Expr)
	defer func() {
		if r := recover(); r != nil {
			// The expression may hold partial state; let it go.
			result, err = nil, fmt.Errorf("ccda: evaluate %q: %v", s.src, r)
			return
		}
		s.pool.Put(expr)
	}()

	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(node)).(type) {
	case *xpath.NodeIterator:
		nodes := []*xmlquery.Node{}
		for v.MoveNext() {
			nav, ok := v.Current().(*xmlquery.NodeNavigator)
			if !ok {
				return nil, fmt.Errorf("ccda: evaluate %q: unexpected navigator %T", s.src, v.Current())
			}
			nodes = append(nodes, nav.Current())
		}
		return nodes, nil
	default:
		return v, nil
	}
}

// Nodes evaluates the selector and requires a node-set result.
func (s *Selector) Nodes(node *xmlquery.Node) ([]*xmlquery.Node, error) {
	res, err := s.Evaluate(node)
	if err != nil {
		return nil, err
	}
	nodes, ok := res.([]*xmlquery.Node)
	if !ok {
		return nil, fmt.Errorf("ccda: selector %q yields %T, not a node-set", s.src, res)
	}
	return nodes, nil
}

// First returns the first node selected relative to node, or nil.
func (s *Selector) First(node *xmlquery.Node) *xmlquery.Node {
	nodes, err := s.Nodes(node)
	if err != nil || len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Text returns the string value of the selector relative to node. Node-set
// results yield the text of the first node; evaluation failures yield "".
func (s *Selector) Text(node *xmlquery.Node) string {
	res, err := s.Evaluate(node)
	if err != nil {
		return ""
	}
	switch v := res.(type) {
	case string:
		return v
	case []*xmlquery.Node:
		if len(v) > 0 {
			return v[0].InnerText()
		}
	}
	return ""
}
