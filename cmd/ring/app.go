package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-alarm-must-ring/internal/calendar"
	"github.com/Veraticus/the-alarm-must-ring/internal/config"
	"github.com/Veraticus/the-alarm-must-ring/internal/daytracker"
	"github.com/Veraticus/the-alarm-must-ring/internal/engine"
	"github.com/Veraticus/the-alarm-must-ring/internal/storage"
	"github.com/Veraticus/the-alarm-must-ring/internal/wake"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// app bundles the collaborators commands share.
type app struct {
	store     *storage.SQLiteStorage
	provider  *config.Provider
	tracker   *daytracker.Tracker
	scheduler *wake.TimerScheduler
	engine    *engine.Engine
}

// openStore opens and migrates the configured database.
func openStore(ctx context.Context) (*storage.SQLiteStorage, *config.Provider, error) {
	provider := config.NewProvider(viper.GetViper())

	store, err := storage.NewSQLiteStorage(provider.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, provider, nil
}

// openApp wires a full engine. onFire receives alarms from the in-process
// scheduler; nil means alarms are only persisted and logged.
func openApp(ctx context.Context, onFire func(a *app, id string)) (*app, error) {
	store, provider, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{store: store, provider: provider}

	sources, err := provider.CalendarSources()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	cal, err := calendar.NewICSCalendar(sources, provider.Location)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a.tracker, err = daytracker.Open(ctx, store, provider.Location())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a.scheduler = wake.NewTimerScheduler(func(id string, requestCode int32) {
		slog.Debug("Platform alarm fired", "alarm_id", id, "request_code", requestCode)
		if onFire != nil {
			onFire(a, id)
		}
	})

	a.engine, err = engine.New(engine.Deps{
		Rules:     store,
		Calendar:  cal,
		Alarms:    store,
		Scheduler: a.scheduler,
		Tracker:   a.tracker,
		Settings:  provider,
		Metrics:   engine.NewMetrics(),
	})
	if err != nil {
		a.scheduler.Close()
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Close()
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}
