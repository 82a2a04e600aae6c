package programa

import (
	"time"

	"github.com/gob-chaco/nodo/internal/shared/types"
)

// Programa is a catalog entry for a social program. Codigo, Nombre and
// Tipo are each unique across the catalog; Tipo is the stable machine
// key the rest of the system joins on.
type Programa struct {
	ID          types.ID `json:"id"`
	Codigo      string   `json:"codigo"`
	Nombre      string   `json:"nombre"`
	Tipo        string   `json:"tipo"`
	Descripcion string   `json:"descripcion"`

	// Presentation hints for the record-view tabs
	Icono string `json:"icono"`
	Color string `json:"color"`
	Orden int    `json:"orden"`

	Activo bool `json:"activo"`

	// Workflow toggles: which stages this program requires
	RequiereEvaluacion   bool `json:"requiere_evaluacion"`
	RequierePlan         bool `json:"requiere_plan"`
	RequiereSeguimientos bool `json:"requiere_seguimientos"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPrograma builds a catalog entry with defaults applied
func NewPrograma(codigo, nombre, tipo string) *Programa {
	now := time.Now()
	return &Programa{
		ID:                   types.NewID(),
		Codigo:               codigo,
		Nombre:               nombre,
		Tipo:                 tipo,
		Icono:                "folder",
		Color:                "#6366f1",
		Activo:               true,
		RequiereEvaluacion:   true,
		RequierePlan:         true,
		RequiereSeguimientos: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
