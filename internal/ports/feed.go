package ports

import (
	"context"

	"github.com/alejandrodnm/lotbot/internal/domain"
)

// Feed entrega lo que los colaboradores externos (scraper, lookup de precio final,
// clasificador, valoración) produjeron desde el último ciclo.
//
// La entrega es at-least-once: lo devuelto por Pull se vuelve a entregar hasta
// que el ciclo llama a Ack con el mismo cycleID.
type Feed interface {
	// Pull devuelve el batch pendiente. cycleID identifica el ciclo que lo consume.
	Pull(ctx context.Context, cycleID string) (domain.FeedBatch, error)
	// Ack confirma que todo lo entregado a cycleID quedó persistido.
	Ack(ctx context.Context, cycleID string) error
}
