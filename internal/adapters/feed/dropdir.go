// Package feed lee los lotes y hechos externos que los colaboradores dejan
// como archivos JSON en un directorio compartido o exponen por HTTP.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/alejandrodnm/lotbot/internal/domain"
)

// Nombres de archivo que entiende el feed. Cada uno es un array JSON.
const (
	SnapshotsFile       = "snapshots.json"
	FinalPricesFile     = "final_prices.json"
	ClassificationsFile = "classifications.json"
	ValuationsFile      = "valuations.json"
)

const claimedSuffix = ".claimed"

// DropDir implementa ports.Feed sobre un directorio.
//
// Pull reclama cada archivo renombrándolo a <nombre>.<cycleID>.claimed, así el
// colaborador puede dejar uno nuevo sin pisar el que se está procesando. Ack lo
// pasa a .done. Un archivo reclamado que nunca recibió Ack (ciclo cancelado o
// abortado) se vuelve a leer en el próximo Pull. Un archivo que no parsea se
// aparta como .bad.
type DropDir struct {
	dir string

	mu      sync.Mutex
	claimed map[string][]string // cycleID → archivos leídos
}

// NewDropDir crea el feed, creando el directorio si no existe.
func NewDropDir(dir string) (*DropDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("feed.NewDropDir: %w", err)
	}
	return &DropDir{dir: dir, claimed: make(map[string][]string)}, nil
}

// Pull lee los archivos nuevos y los reclamados sin confirmar. Un archivo
// corrupto se aparta y se loguea; el resto del batch sigue adelante.
func (d *DropDir) Pull(ctx context.Context, cycleID string) (domain.FeedBatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		b     domain.FeedBatch
		paths []string
	)
	steps := []func() ([]string, error){
		func() ([]string, error) { return consume(ctx, d.dir, SnapshotsFile, cycleID, &b.Snapshots) },
		func() ([]string, error) { return consume(ctx, d.dir, FinalPricesFile, cycleID, &b.FinalPrices) },
		func() ([]string, error) { return consume(ctx, d.dir, ClassificationsFile, cycleID, &b.Classifications) },
		func() ([]string, error) { return consume(ctx, d.dir, ValuationsFile, cycleID, &b.Valuations) },
	}
	for _, step := range steps {
		read, err := step()
		if err != nil {
			return domain.FeedBatch{}, err
		}
		paths = append(paths, read...)
	}

	d.claimed[cycleID] = paths
	return b, nil
}

// Ack marca como .done los archivos leídos por cycleID.
func (d *DropDir) Ack(_ context.Context, cycleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	paths := d.claimed[cycleID]
	delete(d.claimed, cycleID)

	var errs []error
	for _, p := range paths {
		done := strings.TrimSuffix(p, claimedSuffix) + ".done"
		if err := os.Rename(p, done); err != nil {
			errs = append(errs, fmt.Errorf("feed.Ack: rename %s: %w", filepath.Base(p), err))
		}
	}
	return errors.Join(errs...)
}

// consume reclama el archivo nuevo (si existe) y lee todos los reclamados
// pendientes de name, del más viejo al más nuevo.
func consume[T any](ctx context.Context, dir, name, cycleID string, out *[]T) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fresh := filepath.Join(dir, name)
	err := os.Rename(fresh, fmt.Sprintf("%s.%s%s", fresh, cycleID, claimedSuffix))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("feed.Pull: claim %s: %w", name, err)
	}

	pending, err := claimedFiles(dir, name)
	if err != nil {
		return nil, err
	}

	var read []string
	for _, path := range pending {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("feed.Pull: read %s: %w", filepath.Base(path), err)
		}
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			slog.Warn("feed file is not a valid JSON array, setting aside", "file", filepath.Base(path), "err", err)
			bad := strings.TrimSuffix(path, claimedSuffix) + ".bad"
			if err := os.Rename(path, bad); err != nil {
				return nil, fmt.Errorf("feed.Pull: rename %s: %w", filepath.Base(path), err)
			}
			continue
		}
		*out = append(*out, items...)
		read = append(read, path)
	}
	return read, nil
}

// claimedFiles devuelve los <name>.*.claimed ordenados por mtime (y nombre en empate).
func claimedFiles(dir, name string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, name+".*"+claimedSuffix))
	if err != nil {
		return nil, fmt.Errorf("feed.Pull: glob %s: %w", name, err)
	}

	type entry struct {
		path string
		mod  int64
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("feed.Pull: stat %s: %w", filepath.Base(p), err)
		}
		entries = append(entries, entry{p, fi.ModTime().UnixNano()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].mod != entries[j].mod {
			return entries[i].mod < entries[j].mod
		}
		return entries[i].path < entries[j].path
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}
