package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
	"github.com/alejandrodnm/lotbot/internal/ports"
)

// maintenanceStore es lo que necesitan las acciones del operador.
type maintenanceStore interface {
	ports.LotMaintenance
	RecordFinalPrice(ctx context.Context, lotID string, price float64) error
}

// actions son las acciones pedidas por flags. Vacías = ninguna.
type actions struct {
	won        string
	archive    string
	finalPrice string // "<lot_id>=<precio>"
	purge      bool
}

func (a actions) any() bool {
	return a.won != "" || a.archive != "" || a.finalPrice != "" || a.purge
}

// runMaintenance aplica las acciones explícitas del operador. Son transiciones
// externas: el ciclo nunca las dispara por su cuenta.
func runMaintenance(ctx context.Context, m maintenanceStore, a actions) error {
	now := time.Now().UTC()

	if a.finalPrice != "" {
		lotID, price, err := parseFinalPrice(a.finalPrice)
		if err != nil {
			return err
		}
		if err := m.RecordFinalPrice(ctx, lotID, price); err != nil {
			return fmt.Errorf("record final price: %w", err)
		}
		slog.Info("final price recorded", "lot", lotID, "price", price)
	}
	if a.won != "" {
		if err := m.Transition(ctx, a.won, domain.StatusWon, now); err != nil {
			return fmt.Errorf("mark won: %w", err)
		}
		slog.Info("lot marked as won", "lot", a.won)
	}
	if a.archive != "" {
		if err := m.Transition(ctx, a.archive, domain.StatusArchived, now); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		slog.Info("lot archived", "lot", a.archive)
	}
	if a.purge {
		n, err := m.PurgeArchived(ctx)
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		slog.Info("archived lots purged", "deleted", n)
	}
	return nil
}

func parseFinalPrice(s string) (string, float64, error) {
	id, raw, ok := strings.Cut(s, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return "", 0, fmt.Errorf("final price %q: want <lot_id>=<price>", s)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || price < 0 {
		return "", 0, fmt.Errorf("final price %q: invalid price", s)
	}
	return id, price, nil
}
