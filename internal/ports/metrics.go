package ports

import (
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
)

// Metrics registra la actividad del ciclo.
type Metrics interface {
	LotIngested()
	Transition(from, to domain.Status)
	PersistFailure(step string)
	CycleCompleted(d time.Duration, pending int)
}

// TuningSource entrega la configuración numérica vigente. Se consulta al
// comienzo de cada ciclo, lo que permite recargarla sin reiniciar.
type TuningSource interface {
	Tuning() domain.Tuning
}
