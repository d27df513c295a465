package core

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind tags the variant held by a Reference.
type RefKind int

const (
	RefHandle RefKind = iota
	RefID
	RefRemoteID
	RefPath
)

func (k RefKind) String() string {
	switch k {
	case RefHandle:
		return "handle"
	case RefID:
		return "id"
	case RefRemoteID:
		return "remote_id"
	case RefPath:
		return "path"
	}
	return "unknown"
}

// Reference identifies a place in the content tree.
type Reference struct {
	Kind     RefKind
	Location *Location
	ID       int64
	RemoteID string
	Path     string
}

func (r Reference) String() string {
	switch r.Kind {
	case RefHandle:
		if r.Location == nil {
			return "<nil>"
		}
		return strconv.FormatInt(r.Location.ID, 10)
	case RefID:
		return strconv.FormatInt(r.ID, 10)
	case RefRemoteID:
		return r.RemoteID
	case RefPath:
		return r.Path
	}
	return ""
}

// HandleRef wraps an already resolved location.
func HandleRef(l *Location) Reference {
	return Reference{Kind: RefHandle, Location: l}
}

// ParseReference classifies a raw document value as a location reference.
// Numbers and numeric strings are ids, strings starting with "/" are paths,
// the empty string is the root path, and any other string is a remote id.
func ParseReference(v any) (Reference, error) {
	switch t := v.(type) {
	case Reference:
		return t, nil
	case *Location:
		if t == nil {
			return Reference{}, fmt.Errorf("%w: nil location handle", ErrLocation)
		}
		return HandleRef(t), nil
	case int:
		return Reference{Kind: RefID, ID: int64(t)}, nil
	case int64:
		return Reference{Kind: RefID, ID: t}, nil
	case uint64:
		return Reference{Kind: RefID, ID: int64(t)}, nil
	case float64:
		if t != float64(int64(t)) {
			return Reference{}, fmt.Errorf("%w: non-integer location id %v", ErrLocation, t)
		}
		return Reference{Kind: RefID, ID: int64(t)}, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return Reference{Kind: RefPath, Path: "/"}, nil
		}
		if strings.HasPrefix(s, "/") {
			return Reference{Kind: RefPath, Path: s}, nil
		}
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Reference{Kind: RefID, ID: id}, nil
		}
		return Reference{Kind: RefRemoteID, RemoteID: s}, nil
	case nil:
		return Reference{}, fmt.Errorf("%w: empty location reference", ErrLocation)
	}
	return Reference{}, fmt.Errorf("%w: unsupported location reference of type %T", ErrLocation, v)
}
