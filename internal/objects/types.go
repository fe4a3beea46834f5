package objects

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrClosed   = errors.New("object store closed")
)

const (
	// SystemConfigID is the platform-wide configuration object.
	SystemConfigID = "system.config"
	// SecretKey is the native attribute of SystemConfigID holding the shared secret.
	SecretKey = "secret"

	instancePrefix = "system.adapter."
)

// InstanceID returns the object id of a bridge instance.
func InstanceID(namespace string) string {
	return instancePrefix + strings.TrimSpace(namespace)
}

// Object is a host configuration document.
type Object struct {
	ID     string         `json:"_id" bson:"_id"`
	Type   string         `json:"type,omitempty" bson:"type,omitempty"`
	Common map[string]any `json:"common,omitempty" bson:"common,omitempty"`
	Native map[string]any `json:"native" bson:"native"`
}

// Clone returns a copy whose maps can be mutated without touching o.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Common = maps.Clone(o.Common)
	cp.Native = maps.Clone(o.Native)
	if cp.Native == nil {
		cp.Native = map[string]any{}
	}
	return &cp
}

// NativeString returns native[key] when it is a string.
func (o *Object) NativeString(key string) (string, bool) {
	if o == nil || o.Native == nil {
		return "", false
	}
	v, ok := o.Native[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Store reads and writes host objects.
type Store interface {
	GetObject(ctx context.Context, id string) (*Object, error)
	SetObject(ctx context.Context, obj *Object) error
	Close() error
}

// Config configures the object store.
//
// Driver values:
//   - "file": Path is a directory
//   - "sqlite": Path is a database file
//   - "mongo": URI + Database + Collection
//   - "memory" (or empty): in-process only
type Config struct {
	Driver      string
	Path        string
	URI         string
	Database    string
	Collection  string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
