// Package shell is the thin façade consumed by the desktop UI layer. The
// core only depends on Notifier; the window-control surface is opaque
// side-effecting calls the gateway itself never invokes.
package shell

import (
	"runtime"

	"go.uber.org/zap"
)

// SystemInfo describes the host platform for the UI shell.
type SystemInfo struct {
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
	GoVersion    string `json:"goVersion"`
}

// HostInfo returns the running platform's details.
func HostInfo() SystemInfo {
	return SystemInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
	}
}

// WindowControls is implemented by the desktop shell; the gateway only
// forwards these calls when embedded.
type WindowControls interface {
	Minimize()
	Maximize()
	Quit()
}

// Notifier shows a system notification. The core emits human-readable order
// outcome strings through it and the shell decides how to display them.
type Notifier interface {
	Notify(title, body string)
}

// LogNotifier is the headless default: notifications land in the log.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(title, body string) {
	n.Logger.Info("Notification", zap.String("title", title), zap.String("body", body))
}

// NopWindowControls satisfies WindowControls for headless deployments.
type NopWindowControls struct{}

func (NopWindowControls) Minimize() {}
func (NopWindowControls) Maximize() {}
func (NopWindowControls) Quit()     {}
