package domain

import (
	"fmt"
	"strconv"
)

// MinutesLeft es el tiempo restante de un lote en minutos, o "indeterminado"
// cuando el texto no se pudo interpretar. Indeterminado ordena después de
// cualquier valor real y no admite aritmética.
type MinutesLeft struct {
	value int
	known bool
}

// Minutes construye un MinutesLeft conocido.
func Minutes(n int) MinutesLeft {
	return MinutesLeft{value: n, known: true}
}

// Indeterminate devuelve el centinela "tiempo desconocido".
func Indeterminate() MinutesLeft {
	return MinutesLeft{}
}

// Value devuelve los minutos y si son conocidos.
func (m MinutesLeft) Value() (int, bool) {
	return m.value, m.known
}

// IsKnown devuelve true si el valor no es el centinela.
func (m MinutesLeft) IsKnown() bool {
	return m.known
}

// Less ordena ascendente con el centinela al final.
func (m MinutesLeft) Less(o MinutesLeft) bool {
	switch {
	case m.known && o.known:
		return m.value < o.value
	case m.known:
		return true
	default:
		return false
	}
}

func (m MinutesLeft) String() string {
	if !m.known {
		return "indeterminate"
	}
	return strconv.Itoa(m.value) + "m"
}

// Ptr devuelve *int para persistir (nil = indeterminado).
func (m MinutesLeft) Ptr() *int {
	if !m.known {
		return nil
	}
	v := m.value
	return &v
}

// MinutesFromPtr es la inversa de Ptr.
func MinutesFromPtr(p *int) MinutesLeft {
	if p == nil {
		return Indeterminate()
	}
	return Minutes(*p)
}

// Format produce una etiqueta corta para consola: "2h05m", "12m", "?".
func (m MinutesLeft) Format() string {
	if !m.known {
		return "?"
	}
	if m.value >= 60 {
		return fmt.Sprintf("%dh%02dm", m.value/60, m.value%60)
	}
	return fmt.Sprintf("%dm", m.value)
}
