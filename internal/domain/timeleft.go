package domain

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	minutesPerDay  = 1440
	minutesPerHour = 60

	// Ninguna subasta dura un año; más que eso es texto basura.
	maxMinutesLeft = 365 * minutesPerDay
)

var timeToken = regexp.MustCompile(`(?i)(\d+)\s*([dhm])`)

// ParseTimeRemaining convierte el texto libre de tiempo restante ("1d 4h 12m",
// "3 h 5 m", "45m") en minutos: días×1440 + horas×60 + minutos.
//
// nil, vacío, "closed", "unknown" o un texto sin ningún token d/h/m devuelven
// Indeterminate(), igual que un total de más de un año; nunca falla.
func ParseTimeRemaining(text *string) MinutesLeft {
	if text == nil {
		return Indeterminate()
	}
	t := strings.ToLower(strings.TrimSpace(*text))
	if t == "" || strings.Contains(t, "closed") || strings.Contains(t, "unknown") {
		return Indeterminate()
	}

	matches := timeToken.FindAllStringSubmatch(t, -1)
	if len(matches) == 0 {
		return Indeterminate()
	}

	total := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > maxMinutesLeft {
			return Indeterminate()
		}
		switch m[2] {
		case "d":
			total += n * minutesPerDay
		case "h":
			total += n * minutesPerHour
		case "m":
			total += n
		}
		if total > maxMinutesLeft {
			return Indeterminate()
		}
	}
	return Minutes(total)
}
