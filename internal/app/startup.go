package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pushbridge/internal/credentials"
	"pushbridge/internal/eventbus"
	"pushbridge/internal/objects"
	logx "pushbridge/pkg/logx"
)

// Prepare migrates plaintext credentials, loads the instance config into the
// resolver and dispatcher, and opens the handler's ready gate. Migration
// failures are fatal.
func (a *App) Prepare(ctx context.Context) error {
	res, native, err := a.migrate(ctx)
	if err != nil {
		return err
	}
	if res.Migrated {
		// The write above changed the instance object; reload it in-process.
		native, err = a.loadNative(ctx)
		if err != nil {
			return fmt.Errorf("reload instance config: %w", err)
		}
	}
	a.resolver.SetNative(native)
	a.dispatcher.SetNative(native)
	a.handler.MarkReady()

	defs := a.dispatcher.Defaults()
	a.log.Info("instance ready",
		logx.String("namespace", a.namespace),
		logx.Bool("user_set", defs.User != ""),
		logx.Bool("migrated", res.Migrated),
	)
	return nil
}

// MigrateCredentials runs only the credential migration.
func (a *App) MigrateCredentials(ctx context.Context) (credentials.MigrateResult, error) {
	res, _, err := a.migrate(ctx)
	return res, err
}

func (a *App) migrate(ctx context.Context) (credentials.MigrateResult, map[string]any, error) {
	native, err := a.loadNative(ctx)
	if err != nil {
		return credentials.MigrateResult{}, nil, err
	}
	cfg := a.cfgm.Get()
	m := credentials.NewMigrator(a.store, a.namespace, native, a.log.With(logx.String("comp", "credentials")))
	res, err := m.Migrate(ctx, cfg.MigrateAttrs(), cfg.Instance.RenameOnly)
	if err != nil {
		return res, nil, err
	}
	if res.Migrated {
		a.bus.Publish(eventbus.Event{
			Type: eventbus.TypeMigrated,
			Time: time.Now(),
			Data: eventbus.Migrated{Namespace: a.namespace, Attributes: res.Attributes},
		})
	}
	return res, m.Native(), nil
}

// loadNative reads the instance's native config. A missing instance object
// yields an empty config; the dispatcher then reports not configured.
func (a *App) loadNative(ctx context.Context) (map[string]any, error) {
	obj, err := a.store.GetObject(ctx, objects.InstanceID(a.namespace))
	if errors.Is(err, objects.ErrNotFound) {
		a.log.Warn("instance object not found", logx.String("id", objects.InstanceID(a.namespace)))
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read instance config: %w", err)
	}
	if obj.Native == nil {
		return map[string]any{}, nil
	}
	return obj.Native, nil
}

// SystemSecret reads the shared secret used by encrypt and decrypt.
func (a *App) SystemSecret(ctx context.Context) (string, error) {
	return credentials.SystemSecret(ctx, a.store)
}
