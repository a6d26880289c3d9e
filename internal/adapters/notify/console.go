package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/time/rate"
)

// Console implementa ports.Alerter.
type Console struct {
	out     io.Writer
	table   bool
	limiter *rate.Limiter
}

// NewConsole crea un alerter que escribe a stdout. perSecond limita las
// líneas de alerta emitidas; <= 0 desactiva el límite.
func NewConsole(table bool, perSecond float64) *Console {
	return &Console{out: os.Stdout, table: table, limiter: newLimiter(perSecond)}
}

// NewConsoleWriter crea un alerter para tests, sin límite de ritmo.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, limiter: newLimiter(0)}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Alert imprime los lotes en el orden recibido. En modo compacto cada línea
// consume un token del limiter; en modo tabla la tabla entera consume uno.
// Una cancelación del contexto corta la emisión.
func (c *Console) Alert(ctx context.Context, ranked []domain.Lot) error {
	now := time.Now().Format("15:04:05")
	if len(ranked) == 0 {
		fmt.Fprintf(c.out, "[%s] no lots above threshold\n", now)
		return nil
	}

	if c.table {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("notify.Alert: %w", err)
		}
		fmt.Fprintf(c.out, "\n[%s] %d high edge lots\n", now, len(ranked))
		c.printTable(ranked)
		return nil
	}

	for i, lot := range ranked {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("notify.Alert: %w", err)
		}
		fmt.Fprintln(c.out, compactLine(now, i+1, lot))
	}
	return nil
}

func (c *Console) printTable(lots []domain.Lot) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Lot", "Title", "Score", "Bid", "Value", "MaxBid", "Time", "Action")

	for i, lot := range lots {
		table.Append(
			fmt.Sprintf("%d", i+1),
			lot.LotID,
			truncate(lot.Title, 38),
			floatLabel(lot.EdgeScore, "%.1f"),
			fmt.Sprintf("$%.2f", lot.CurrentBid),
			valueLabel(lot),
			floatLabel(lot.MaxBid, "$%.2f"),
			lot.MinutesLeft.Format(),
			actionLabel(lot.Recommendation),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Score = undervaluation + velocity + time bonus | Value = market (or predicted) value")
	fmt.Fprintln(c.out, "  MaxBid = highest bid that still clears the required profit after fees, tax and logistics")
}

func compactLine(now string, pos int, lot domain.Lot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] #%d %s score %s | %s | bid $%.2f value %s max %s | %s left",
		now, pos, lot.LotID, floatLabel(lot.EdgeScore, "%.1f"),
		compactName(lot.Title, 40), lot.CurrentBid, valueLabel(lot),
		floatLabel(lot.MaxBid, "$%.2f"), lot.MinutesLeft.Format())
	if lot.Recommendation != "" {
		fmt.Fprintf(&sb, " %s", actionLabel(lot.Recommendation))
	}
	if lot.URL != "" {
		fmt.Fprintf(&sb, " %s", lot.URL)
	}
	return sb.String()
}

// --- helpers ---

func valueLabel(lot domain.Lot) string {
	v, ok := lot.ValueEstimate()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("$%.2f", v)
}

func floatLabel(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func actionLabel(r domain.Recommendation) string {
	switch r {
	case domain.RecommendPursue:
		return "PURSUE"
	case domain.RecommendIgnore:
		return "ignore"
	default:
		return "-"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
