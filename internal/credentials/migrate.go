package credentials

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"

	"pushbridge/internal/objects"
	logx "pushbridge/pkg/logx"
)

// EncryptedPrefix marks the encrypted counterpart of a native attribute.
const EncryptedPrefix = "enc_"

// EncryptedName returns the encrypted attribute name for attr ("token" -> "enc_token").
func EncryptedName(attr string) string { return EncryptedPrefix + attr }

// MigrateResult is the outcome of a successful Migrate call.
type MigrateResult struct {
	Migrated   bool
	Attributes []string
}

// Migrator moves plaintext native attributes of one instance object to
// their enc_ counterparts. It keeps its own view of the instance's native
// config and refreshes it after a successful write, so callers can reload
// in-process instead of restarting.
type Migrator struct {
	store     objects.Store
	namespace string
	log       logx.Logger

	mu     sync.Mutex
	native map[string]any
}

func NewMigrator(store objects.Store, namespace string, native map[string]any, log logx.Logger) *Migrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Migrator{
		store:     store,
		namespace: namespace,
		log:       log,
		native:    maps.Clone(native),
	}
}

// Native returns a copy of the current native config view.
func (m *Migrator) Native() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.native)
}

// Pending returns attrs that are present as plaintext but have no enc_ counterpart yet.
func (m *Migrator) Pending(attrs []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pendingAttrs(m.native, attrs)
}

func pendingAttrs(native map[string]any, attrs []string) []string {
	var out []string
	for _, a := range attrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, plain := native[a]; !plain {
			continue
		}
		if _, enc := native[EncryptedName(a)]; enc {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Migrate encrypts (or, with renameOnly, just renames) the pending attrs and
// writes the instance object back. It does no I/O when nothing is pending.
func (m *Migrator) Migrate(ctx context.Context, attrs []string, renameOnly bool) (MigrateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := pendingAttrs(m.native, attrs)
	if len(pending) == 0 {
		return MigrateResult{}, nil
	}

	secret, err := SystemSecret(ctx, m.store)
	if err != nil {
		return MigrateResult{}, &MigrationError{Reason: "no system secret", Err: err}
	}

	id := objects.InstanceID(m.namespace)
	obj, err := m.store.GetObject(ctx, id)
	if err != nil {
		if errors.Is(err, objects.ErrNotFound) {
			return MigrateResult{}, &MigrationError{Reason: "instance object not found", Err: err}
		}
		return MigrateResult{}, &MigrationError{Reason: "read " + id, Err: err}
	}
	if obj.Native == nil {
		obj.Native = map[string]any{}
	}

	for _, attr := range pending {
		enc := ""
		if v := obj.Native[attr]; truthy(v) {
			plain := stringValue(v)
			if renameOnly {
				enc = plain
			} else {
				enc = Encrypt(secret, plain)
			}
		}
		obj.Native[EncryptedName(attr)] = enc
		delete(obj.Native, attr)
	}

	if err := m.store.SetObject(ctx, obj); err != nil {
		return MigrateResult{}, &MigrationError{Reason: "write " + id, Err: err}
	}

	m.native = maps.Clone(obj.Native)
	m.log.Info("credentials migrated",
		logx.String("object", id),
		logx.String("attrs", strings.Join(pending, ",")),
		logx.Bool("rename_only", renameOnly),
	)
	return MigrateResult{Migrated: true, Attributes: pending}, nil
}

// truthy reports whether a native value counts as set. Falsy plaintext
// (false, 0, "", nil) migrates to an empty enc_ value.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case uint:
		return x != 0
	case uint64:
		return x != 0
	default:
		return true
	}
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
