// Package entity defines the system-of-record view the index engine works with.
package entity

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrNoAttribute signals that an entity type does not define the requested attribute.
var ErrNoAttribute = errors.New("no such attribute")

var tagRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*$`)

// Entity is one instance of a registered entity type.
type Entity interface {
	// TypeTag returns "<namespace>.<type>".
	TypeTag() string
	// Key returns the natural key rendered as text.
	Key() string
	// Attr returns the attribute value. A nil value means the attribute is absent.
	// Relation attributes return Entity, []Entity or nil.
	Attr(name string) (any, error)
}

// Kinded is implemented by entities that declare attribute types.
type Kinded interface {
	AttrKind(name string) Kind
}

// MatchReceiver is implemented by entities that accept search match metadata.
type MatchReceiver interface {
	SetMatch(attr string, m any)
}

// Kind is a declared attribute type used to pick a value converter.
type Kind string

// Attribute kinds.
const (
	KindText     Kind = "text"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
	KindRelation Kind = "relation"
)

// ParseKind validates a kind name from configuration.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindText, KindInt, KindFloat, KindBool, KindDate, KindDateTime:
		return k, true
	case "":
		return KindText, true
	}
	return "", false
}

// KindOf returns the declared kind of an attribute, or infers one from the value.
func KindOf(e Entity, name string, value any) Kind {
	if k, ok := e.(Kinded); ok {
		if kind := k.AttrKind(name); kind != "" {
			return kind
		}
	}
	switch value.(type) {
	case time.Time, *time.Time:
		return KindDateTime
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32, float64:
		return KindFloat
	case Entity, []Entity:
		return KindRelation
	}
	return KindText
}

// ValidTag reports whether s is a well-formed "<namespace>.<type>" tag.
func ValidTag(s string) bool {
	return tagRegex.MatchString(s)
}
