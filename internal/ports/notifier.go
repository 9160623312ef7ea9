package ports

import (
	"github.com/alejandrodnm/polybridge/internal/domain"
)

// Notifier presenta los resultados de autenticación al operador.
type Notifier interface {
	// LadderReport imprime la secuencia de intentos del fallback ladder.
	LadderReport(attempts []domain.AttemptResult)

	// MatrixReport imprime la tabla completa de celdas probadas por el
	// matrix prober, en ancho fijo.
	MatrixReport(cells []domain.AttemptResult)

	// StoryReport imprime los runs de autenticación recientes.
	StoryReport(stories []domain.AuthStory)

	// Diagnosis imprime la causa probable y los pasos de remediación.
	Diagnosis(d domain.Diagnosis)
}
