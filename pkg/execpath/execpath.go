// Package execpath tracks where in a document a build currently is.
//
// A Path is a stack of segments (mapping keys, sequence indexes, included
// files) with an additional stack of snapshots. Components that push
// temporary context call Store before and Restore in a defer, so the
// context is dropped even when they fail halfway:
//
//	p.Store()
//	defer p.Restore()
//	p.Push("relation")
package execpath

import (
	"context"
	"slices"
	"strconv"
	"strings"
)

type segmentKind int

const (
	keySegment segmentKind = iota
	indexSegment
	fileSegment
)

type segment struct {
	kind  segmentKind
	key   string
	index int
}

func (s segment) String() string {
	if s.kind == indexSegment {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// Path is the mutable execution path of a single build. It is not safe for
// concurrent use.
type Path struct {
	segments  []segment
	snapshots [][]segment
}

// New returns an empty path.
func New() *Path {
	return &Path{}
}

// Push appends a segment. Integers are rendered as sequence indexes, any
// other value as a mapping key.
func (p *Path) Push(seg any) {
	switch v := seg.(type) {
	case int:
		p.segments = append(p.segments, segment{kind: indexSegment, index: v})
	case string:
		p.segments = append(p.segments, segment{kind: keySegment, key: v})
	default:
		p.segments = append(p.segments, segment{kind: keySegment, key: toString(v)})
	}
}

// PushFile appends a file boundary, rendered with an arrow.
func (p *Path) PushFile(name string) {
	p.segments = append(p.segments, segment{kind: fileSegment, key: name})
}

// Pop removes the last segment. Popping an empty path is a no-op.
func (p *Path) Pop() {
	if len(p.segments) > 0 {
		p.segments = p.segments[:len(p.segments)-1]
	}
}

// Len returns the number of segments.
func (p *Path) Len() int {
	return len(p.segments)
}

// Store pushes a copy of the current segments onto the snapshot stack.
func (p *Path) Store() {
	p.snapshots = append(p.snapshots, slices.Clone(p.segments))
}

// Restore pops the last snapshot and makes it the current path. Without a
// snapshot it does nothing.
func (p *Path) Restore() {
	n := len(p.snapshots)
	if n == 0 {
		return
	}
	p.segments = p.snapshots[n-1]
	p.snapshots = p.snapshots[:n-1]
}

// Depth returns the number of pending snapshots.
func (p *Path) Depth() int {
	return len(p.snapshots)
}

// String renders the path, e.g. "content/[0]/children/[2] -> header.yaml/title".
func (p *Path) String() string {
	var b strings.Builder
	for i, s := range p.segments {
		if i > 0 {
			if s.kind == fileSegment {
				b.WriteString(" -> ")
			} else {
				b.WriteByte('/')
			}
		}
		b.WriteString(s.String())
	}
	return b.String()
}

func toString(v any) string {
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case interface{ String() string }:
		return t.String()
	}
	return "?"
}

type ctxKey struct{}

// WithPath returns a context carrying p.
func WithPath(ctx context.Context, p *Path) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the path carried by ctx. Without one it returns a
// fresh, detached path so callers never need a nil check.
func FromContext(ctx context.Context) *Path {
	if p, ok := ctx.Value(ctxKey{}).(*Path); ok && p != nil {
		return p
	}
	return New()
}
