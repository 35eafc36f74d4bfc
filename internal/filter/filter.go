// SPDX-License-Identifier: MIT

// Package filter implements the tree-walking evaluator for per-layer
// feature filter expressions. The JSON array grammar
// (`["==", "key", "val"]`, `["all", e1, e2, ...]`, ...) has no ready-made
// third-party expression library to build on — see DESIGN.md for why
// this is built on encoding/json instead.
package filter

import (
	"encoding/json"
	"fmt"
)

// Expr is a tagged variant (Has, Eq, All, ...) with an explicit evaluator,
// avoiding repeated JSON walks at match time.
type Expr interface {
	Eval(ctx *Context) bool
}

// Context is the attribute environment a filter evaluates against: a
// feature's regular attributes plus the pseudo-attributes $id, $type,
// $zoom (§4.K).
type Context struct {
	Attrs   map[string]interface{}
	ID      uint64
	HasID   bool
	Type    string // "Point" | "LineString" | "Polygon"
	Zoom    uint8
	Exclude map[string]bool // attribute-filter schedules keys for exclusion here
	Warn    func(format string, args ...interface{})
}

func (c *Context) lookup(key string) (interface{}, bool) {
	switch key {
	case "$id":
		if c.HasID {
			return c.ID, true
		}
		return nil, false
	case "$type":
		return c.Type, true
	case "$zoom":
		return int64(c.Zoom), true
	}
	v, ok := c.Attrs[key]
	return v, ok
}

func (c *Context) warn(format string, args ...interface{}) {
	if c.Warn != nil {
		c.Warn(format, args...)
	}
}

// Has reports whether key is present.
type Has struct{ Key string }

func (e Has) Eval(c *Context) bool { _, ok := c.lookup(e.Key); return ok }

// NotHas is the negation of Has.
type NotHas struct{ Key string }

func (e NotHas) Eval(c *Context) bool { return !(Has{e.Key}).Eval(c) }

// cmpOp is shared by ==, !=, <, <=, >, >=.
type cmpOp struct {
	Key string
	Val interface{}
	Op  string
}

func (e cmpOp) Eval(c *Context) bool {
	v, ok := c.lookup(e.Key)
	if !ok {
		// Missing attributes evaluate as not-found; != returns true for
		// not-found, all others false (§4.K).
		return e.Op == "!="
	}
	cmp, comparable := compare(v, e.Val)
	if !comparable {
		c.warn("type-mismatched comparison for key %q", e.Key)
		return false
	}
	switch e.Op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// In reports whether the attribute's value matches any of Values.
type In struct {
	Key    string
	Values []interface{}
}

func (e In) Eval(c *Context) bool {
	v, ok := c.lookup(e.Key)
	if !ok {
		return false
	}
	for _, want := range e.Values {
		if cmp, comparable := compare(v, want); comparable && cmp == 0 {
			return true
		}
	}
	return false
}

// NotIn is the negation of In; per §4.K, a not-found attribute makes !in
// return true.
type NotIn struct {
	Key    string
	Values []interface{}
}

func (e NotIn) Eval(c *Context) bool {
	_, ok := c.lookup(e.Key)
	if !ok {
		return true
	}
	return !(In{e.Key, e.Values}).Eval(c)
}

type All []Expr

func (e All) Eval(c *Context) bool {
	for _, sub := range e {
		if !sub.Eval(c) {
			return false
		}
	}
	return true
}

type Any []Expr

func (e Any) Eval(c *Context) bool {
	for _, sub := range e {
		if sub.Eval(c) {
			return true
		}
	}
	return false
}

type None []Expr

func (e None) Eval(c *Context) bool {
	return !(Any(e)).Eval(c)
}

// AttributeFilter evaluates Expr; if false, it schedules Key for exclusion
// from the feature's attributes rather than dropping the feature (§4.K).
type AttributeFilter struct {
	Key  string
	Expr Expr
}

func (e AttributeFilter) Eval(c *Context) bool {
	if !e.Expr.Eval(c) {
		if c.Exclude != nil {
			c.Exclude[e.Key] = true
		}
	}
	return true
}

// compare returns (cmp, true) when a and b are both numbers or both
// strings; (0, false) for type mismatches, which callers treat as a
// type-mismatched comparison per §4.K.
func compare(a, b interface{}) (int, bool) {
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		if ab == bb {
			return 0, true
		}
		return -1, true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Parse compiles a JSON-array filter expression (§4.K grammar).
func Parse(raw json.RawMessage) (Expr, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("filter expression must be a JSON array: %w", err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty filter expression")
	}
	var op string
	if err := json.Unmarshal(arr[0], &op); err != nil {
		return nil, fmt.Errorf("filter operator must be a string: %w", err)
	}

	switch op {
	case "has":
		key, err := decodeString(arr, 1)
		return Has{key}, err
	case "!has":
		key, err := decodeString(arr, 1)
		return NotHas{key}, err
	case "==", "!=", "<", "<=", ">", ">=":
		key, err := decodeString(arr, 1)
		if err != nil {
			return nil, err
		}
		var val interface{}
		if err := json.Unmarshal(arr[2], &val); err != nil {
			return nil, err
		}
		return cmpOp{Key: key, Val: val, Op: op}, nil
	case "in", "!in":
		key, err := decodeString(arr, 1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, 0, len(arr)-2)
		for _, r := range arr[2:] {
			var v interface{}
			if err := json.Unmarshal(r, &v); err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		if op == "in" {
			return In{key, values}, nil
		}
		return NotIn{key, values}, nil
	case "all", "any", "none":
		subs := make([]Expr, 0, len(arr)-1)
		for _, r := range arr[1:] {
			sub, err := Parse(r)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		switch op {
		case "all":
			return All(subs), nil
		case "any":
			return Any(subs), nil
		default:
			return None(subs), nil
		}
	case "attribute-filter":
		key, err := decodeString(arr, 1)
		if err != nil {
			return nil, err
		}
		sub, err := Parse(arr[2])
		if err != nil {
			return nil, err
		}
		return AttributeFilter{Key: key, Expr: sub}, nil
	default:
		return nil, fmt.Errorf("unknown filter operator %q", op)
	}
}

func decodeString(arr []json.RawMessage, i int) (string, error) {
	if i >= len(arr) {
		return "", fmt.Errorf("filter expression missing operand %d", i)
	}
	var s string
	if err := json.Unmarshal(arr[i], &s); err != nil {
		return "", fmt.Errorf("expected string operand: %w", err)
	}
	return s, nil
}

// LayerFilters is the top-level filter map keyed by layer name, with "*"
// applying to all layers (§4.K). Both the layer-specific and "*" filters,
// when present, must pass.
type LayerFilters map[string]Expr

func ParseLayerFilters(raw map[string]json.RawMessage) (LayerFilters, error) {
	out := make(LayerFilters, len(raw))
	for layer, expr := range raw {
		e, err := Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", layer, err)
		}
		out[layer] = e
	}
	return out, nil
}

// Eval runs the layer-specific filter (if any) and the "*" filter (if any);
// both must pass.
func (lf LayerFilters) Eval(layer string, ctx *Context) bool {
	if e, ok := lf["*"]; ok && !e.Eval(ctx) {
		return false
	}
	if e, ok := lf[layer]; ok && !e.Eval(ctx) {
		return false
	}
	return true
}
