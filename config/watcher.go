package config

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
)

// Watcher implementa ports.TuningSource sobre el archivo de configuración.
// Cada llamada a Tuning compara el mtime del archivo y, si cambió, lo recarga.
// Una edición inválida se loguea y se sigue usando la última configuración buena.
type Watcher struct {
	path string

	mu      sync.Mutex
	current *Config
	modTime time.Time
}

// NewWatcher parte de una configuración ya cargada desde path.
func NewWatcher(path string, initial *Config) *Watcher {
	w := &Watcher{path: path, current: initial}
	if fi, err := os.Stat(path); err == nil {
		w.modTime = fi.ModTime()
	}
	return w
}

// Tuning devuelve la configuración numérica vigente.
func (w *Watcher) Tuning() domain.Tuning {
	return w.Config().Tuning()
}

// Config devuelve la configuración vigente, recargándola si el archivo cambió.
func (w *Watcher) Config() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()

	fi, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config stat failed, keeping last config", "path", w.path, "err", err)
		return w.current
	}
	if fi.ModTime().Equal(w.modTime) {
		return w.current
	}

	// El mtime se registra aunque la recarga falle: no se reintenta hasta la próxima edición.
	w.modTime = fi.ModTime()
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config reload failed, keeping last config", "path", w.path, "err", err)
		return w.current
	}
	slog.Info("config reloaded", "path", w.path)
	w.current = cfg
	return w.current
}
