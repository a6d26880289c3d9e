package ports

import (
	"context"

	"github.com/alejandrodnm/lotbot/internal/domain"
)

// Alerter recibe los lotes pending que superan el umbral de edge score,
// ya ordenados por ranking.
type Alerter interface {
	Alert(ctx context.Context, ranked []domain.Lot) error
}
