package institucional

import (
	"context"

	"github.com/gob-chaco/nodo/internal/shared/types"
)

// DerivacionFilter narrows referral listings
type DerivacionFilter struct {
	CiudadanoID           *types.ID
	InstitucionProgramaID *types.ID
	Estado                *EstadoDerivacion
	Urgencia              *Urgencia
}

// CasoFilter narrows case listings
type CasoFilter struct {
	CiudadanoID           *types.ID
	InstitucionProgramaID *types.ID
	Estado                *EstadoCaso
}

// Tx exposes the operations available inside a referral/case
// transaction. ForUpdate reads hold row locks until commit.
type Tx interface {
	GetDerivacionForUpdate(ctx context.Context, id types.ID) (*DerivacionInstitucional, error)
	UpdateDerivacion(ctx context.Context, d *DerivacionInstitucional) error

	GetInstitucionPrograma(ctx context.Context, id types.ID) (*InstitucionPrograma, error)
	GetEstadoGlobal(ctx context.Context, institucionID types.ID) (EstadoGlobal, error)

	// CountCasosAbiertos counts cases in ACTIVO or EN_SEGUIMIENTO for
	// the link, the quota-consuming set.
	CountCasosAbiertos(ctx context.Context, institucionProgramaID types.ID) (int, error)

	// GetCasoAbierto returns the open case for the pair, or nil when
	// there is none.
	GetCasoAbierto(ctx context.Context, ciudadanoID, institucionProgramaID types.ID) (*CasoInstitucional, error)

	MaxVersionCaso(ctx context.Context, ciudadanoID, institucionProgramaID types.ID) (int, error)
	NextCodigoSeq(ctx context.Context) (int64, error)
	CreateCaso(ctx context.Context, c *CasoInstitucional) error

	GetCasoForUpdate(ctx context.Context, id types.ID) (*CasoInstitucional, error)
	UpdateCaso(ctx context.Context, c *CasoInstitucional) error

	AppendHistorial(ctx context.Context, h *HistorialCaso) error
}

// Repository provides persistence for the institutional layer
type Repository interface {
	// RunInTx runs fn inside a single transaction. A non-nil error
	// rolls everything back.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	CreateDerivacion(ctx context.Context, d *DerivacionInstitucional) error
	GetDerivacion(ctx context.Context, id types.ID) (*DerivacionInstitucional, error)
	ListDerivaciones(ctx context.Context, filter DerivacionFilter) ([]*DerivacionInstitucional, error)

	GetCaso(ctx context.Context, id types.ID) (*CasoInstitucional, error)
	ListCasos(ctx context.Context, filter CasoFilter) ([]*CasoInstitucional, error)
	GetHistorial(ctx context.Context, casoID types.ID) ([]*HistorialCaso, error)

	CreateInstitucionPrograma(ctx context.Context, ip *InstitucionPrograma) error
	GetInstitucionPrograma(ctx context.Context, id types.ID) (*InstitucionPrograma, error)
	UpdateInstitucionPrograma(ctx context.Context, ip *InstitucionPrograma) error
	ListInstitucionProgramas(ctx context.Context, institucionID types.ID) ([]*InstitucionPrograma, error)
	CountCasosAbiertos(ctx context.Context, institucionProgramaID types.ID) (int, error)

	GetEstadoGlobal(ctx context.Context, institucionID types.ID) (EstadoGlobal, error)
	SetEstadoGlobal(ctx context.Context, institucionID types.ID, estado EstadoGlobal) error
}
