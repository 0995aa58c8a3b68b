package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/cli"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep alarms armed and ring them",
		Long: `Run in the foreground: refresh on start, periodically, and whenever the
configured timezone changes. Alarms ring in this process. First-event-of-day
tracking resets at local midnight.`,
		RunE: runDaemon,
	}
}

// daemon owns the long-running schedule around an app.
type daemon struct {
	app  *app
	out  io.Writer
	cron *cron.Cron
	zone string
	mu   sync.Mutex
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx := cli.NewInterruptHandler(cmd.ErrOrStderr()).HandleInterrupts(cmd.Context())

	d := &daemon{out: cmd.OutOrStdout()}
	a, err := openApp(ctx, d.ring)
	if err != nil {
		return err
	}
	defer a.Close()
	d.app = a

	d.refresh(ctx, model.TriggerBoot)

	if err := d.reschedule(ctx); err != nil {
		return err
	}
	defer d.stopCron()

	viper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("Config file changed", "path", e.Name)
		d.configChanged(ctx)
	})
	if viper.ConfigFileUsed() != "" {
		viper.WatchConfig()
	}

	srv := d.serveMetrics()

	fmt.Fprintln(d.out, cli.FormatTitle("ring daemon running"))
	<-ctx.Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	slog.Info("Daemon stopped")
	return nil
}

// reschedule rebuilds the cron schedule in the current device zone.
func (d *daemon) reschedule(ctx context.Context) error {
	settings, err := d.app.provider.Settings()
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(settings.Location))
	if _, err := c.AddFunc("0 0 * * *", func() { d.resetDay(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule day reset: %w", err)
	}
	every := fmt.Sprintf("@every %s", settings.RefreshInterval)
	if _, err := c.AddFunc(every, func() { d.refresh(ctx, model.TriggerPeriodic) }); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	d.mu.Lock()
	old := d.cron
	d.cron = c
	d.zone = settings.Location.String()
	d.mu.Unlock()

	if old != nil {
		<-old.Stop().Done()
	}
	c.Start()

	slog.Info("Refresh schedule armed", "zone", settings.Location.String(), "interval", settings.RefreshInterval)
	return nil
}

func (d *daemon) stopCron() {
	d.mu.Lock()
	c := d.cron
	d.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// configChanged refreshes after an edit, as a timezone change if the device
// zone moved.
func (d *daemon) configChanged(ctx context.Context) {
	zone := d.app.provider.Location().String()

	d.mu.Lock()
	moved := zone != d.zone
	d.mu.Unlock()

	if !moved {
		d.refresh(ctx, model.TriggerImmediate)
		return
	}

	slog.Info("Device timezone changed", "zone", zone)
	if err := d.reschedule(ctx); err != nil {
		slog.Error("Failed to rebuild schedule", "error", err)
	}
	d.refresh(ctx, model.TriggerTimezoneChange)
}

func (d *daemon) refresh(ctx context.Context, trigger model.Trigger) {
	if ctx.Err() != nil {
		return
	}
	result, err := d.app.engine.RunRefreshCycle(ctx, trigger)
	if err != nil {
		slog.Error("Refresh failed", "trigger", trigger, "error", err)
		return
	}
	if !result.OK() {
		fmt.Fprintln(d.out, cli.RenderResult(result))
	}
}

func (d *daemon) resetDay(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := d.app.engine.RolloverDay(ctx); err != nil {
		slog.Error("Day rollover failed", "error", err)
	}
}

// ring is the scheduler's fire callback.
func (d *daemon) ring(a *app, id string) {
	alarm, err := a.engine.AlarmFired(context.Background(), id)
	if err != nil {
		slog.Error("Failed to record fired alarm", "alarm_id", id, "error", err)
		if alarm == nil {
			return
		}
	}
	if alarm.UserDismissed {
		slog.Info("Dismissed alarm suppressed", "alarm_id", id)
		return
	}

	loc := a.provider.Location()
	msg := fmt.Sprintf("\a%s starts at %s", alarm.EventTitle, alarm.EventStartTime.In(loc).Format("15:04"))
	if alarm.AdHoc {
		msg = "\a" + alarm.EventTitle
	}
	fmt.Fprintln(d.out, cli.FormatTitle(msg))
}

func (d *daemon) serveMetrics() *http.Server {
	addr := d.app.provider.MetricsListen()
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", d.app.engine.Metrics().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", addr)
	return srv
}
