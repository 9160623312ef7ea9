package ports

import (
	"context"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// Journal persiste el histórico de runs de autenticación y preflight.
type Journal interface {
	// SaveStory guarda el resultado de un run de autenticación.
	SaveStory(ctx context.Context, story domain.AuthStory) error

	// RecentStories devuelve los últimos runs, el más reciente primero.
	RecentStories(ctx context.Context, limit int) ([]domain.AuthStory, error)

	// SavePreflight registra el resultado de un ciclo de verificación.
	SavePreflight(ctx context.Context, rec domain.PreflightRecord) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
