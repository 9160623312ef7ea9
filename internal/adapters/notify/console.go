package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// Console implementa ports.Notifier.
//
// Escribe a stderr por defecto: stdout lo ocupa el protocolo JSON del
// bridge y cualquier tabla lo rompería.
type Console struct {
	out     io.Writer
	verbose bool
}

// NewConsole crea un notificador que escribe a stderr.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stderr, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// LadderReport imprime la secuencia de intentos del fallback ladder.
func (c *Console) LadderReport(attempts []domain.AttemptResult) {
	if len(attempts) == 0 {
		return
	}

	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] auth ladder — %d intento(s)\n", now, len(attempts))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Rung", "SigType", "Addr", "Stage", "Result", "Detail")

	for i, a := range attempts {
		detail := truncate(a.Error, 40)
		if c.verbose {
			detail = a.Error
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			a.Label,
			a.SignatureType.String(),
			addrMode(a.UsedEffectiveAddress),
			a.Stage,
			a.Outcome(),
			detail,
		)
	}

	table.Render()
	fmt.Fprintln(c.out, "  Addr: signer = clave derivada | effective = funder wallet")
}

// MatrixReport imprime la tabla completa de celdas probadas por el matrix
// prober. Siempre se imprime entera, haya ganador o no — el valor está en
// ver TODAS las combinaciones rechazadas.
func (c *Console) MatrixReport(cells []domain.AttemptResult) {
	now := time.Now().Format("15:04:05")
	wins := 0
	for _, r := range cells {
		if r.Success {
			wins++
		}
	}
	fmt.Fprintf(c.out, "\n[%s] matrix probe — %d celdas, %d hit(s)\n", now, len(cells), wins)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "SigType", "Secret", "SigEnc", "Source", "Stage", "Result")

	for i, r := range cells {
		table.Append(
			fmt.Sprintf("%d", i+1),
			r.SignatureType.String(),
			string(r.Options.SecretMode),
			string(r.Options.SigEncoding),
			string(r.Source),
			r.Stage,
			r.Outcome(),
		)
	}

	table.Render()

	if wins == 0 {
		fmt.Fprintln(c.out, "  Ninguna combinación aceptada — el problema no es de encoding.")
	}
}

// StoryReport imprime los runs de autenticación recientes.
func (c *Console) StoryReport(stories []domain.AuthStory) {
	if len(stories) == 0 {
		fmt.Fprintln(c.out, "\n  Sin runs de autenticación registrados todavía.")
		return
	}

	fmt.Fprintf(c.out, "\n=== AUTH HISTORY (últimos %d runs) ===\n", len(stories))

	table := tablewriter.NewWriter(c.out)
	table.Header("When", "Run", "Status", "SigType", "Addr", "Balance", "Cause")

	for _, s := range stories {
		table.Append(
			s.CreatedAt.Format("01-02 15:04"),
			truncate(s.RunID, 24),
			string(s.Status),
			fmt.Sprintf("%s/%s", s.SignatureType.String(), addrMode(s.UsedEffective)),
			shortAddr(s.SignerAddress),
			s.BalanceUSDC,
			string(s.DiagnosisCause),
		)
	}

	table.Render()
}

// Diagnosis imprime la causa probable y los pasos de remediación.
// Los pasos son guía para el operador — nunca se ejecutan.
func (c *Console) Diagnosis(d domain.Diagnosis) {
	fmt.Fprintf(c.out, "\n=== DIAGNOSIS ===\n")
	fmt.Fprintf(c.out, "  Cause:      %s (confidence: %s)\n", d.Cause, d.Confidence)
	if d.Summary != "" {
		fmt.Fprintf(c.out, "  Summary:    %s\n", d.Summary)
	}

	if len(d.Remediation) > 0 {
		fmt.Fprintf(c.out, "\n  Remediation:\n")
		for i, step := range d.Remediation {
			fmt.Fprintf(c.out, "  %d. %s\n", i+1, step)
		}
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

// addrMode etiqueta qué dirección fue a los headers de auth.
func addrMode(usedEffective bool) string {
	if usedEffective {
		return "effective"
	}
	return "signer"
}

// shortAddr abrevia una dirección 0x para tablas: 0x1234..abcd.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

// truncate corta s a maxLen caracteres con elipsis.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
