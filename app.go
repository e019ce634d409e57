package main

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"upnpscan/internal/discovery"
)

// App struct
type App struct {
	ctx     context.Context
	manager *discovery.Manager
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{manager: discovery.NewManager(nil)}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

func (a *App) handleUpdate(update discovery.Update) {
	runtime.EventsEmit(a.ctx, "discovery:update", update)
}

func (a *App) handleStatus(progress discovery.Progress) {
	runtime.EventsEmit(a.ctx, "discovery:status", progress)
}

// StartDiscovery begins a discovery session with the provided configuration.
func (a *App) StartDiscovery(config discovery.Config) (discovery.Snapshot, error) {
	return a.manager.Start(a.ctx, config, a.handleUpdate, a.handleStatus)
}

// StopDiscovery ends the active discovery session.
func (a *App) StopDiscovery() (discovery.Progress, error) {
	return a.manager.Stop()
}

// TriggerSearch issues an extra search round immediately.
func (a *App) TriggerSearch() error {
	return a.manager.Search()
}

// GetSnapshot returns the latest discovery snapshot.
func (a *App) GetSnapshot() discovery.Snapshot {
	return a.manager.GetSnapshot()
}

// ExportResults exports the current device table to JSON.
func (a *App) ExportResults() (string, error) {
	data, err := a.manager.Export()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ImportResults loads device data from JSON.
func (a *App) ImportResults(payload string) (discovery.Snapshot, error) {
	return a.manager.Import([]byte(payload))
}
