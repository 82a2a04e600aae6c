package inscripcion

import (
	"context"

	"github.com/gob-chaco/nodo/internal/shared/types"
)

// InscripcionFilter narrows enrollment listings
type InscripcionFilter struct {
	CiudadanoID *types.ID
	ProgramaID  *types.ID
	Estado      *EstadoInscripcion
}

// DerivacionFilter narrows referral listings
type DerivacionFilter struct {
	CiudadanoID       *types.ID
	ProgramaDestinoID *types.ID
	Estado            *EstadoDerivacion
}

// Tx exposes the operations available inside an enrollment transaction
type Tx interface {
	GetDerivacionForUpdate(ctx context.Context, id types.ID) (*DerivacionPrograma, error)
	UpdateDerivacion(ctx context.Context, d *DerivacionPrograma) error

	// GetInscripcionPorPar returns the enrollment for (citizen,
	// program), or nil when there is none.
	GetInscripcionPorPar(ctx context.Context, ciudadanoID, programaID types.ID) (*InscripcionPrograma, error)
	CreateInscripcion(ctx context.Context, i *InscripcionPrograma) error
	GetInscripcionForUpdate(ctx context.Context, id types.ID) (*InscripcionPrograma, error)
	UpdateInscripcion(ctx context.Context, i *InscripcionPrograma) error
}

// Repository provides persistence for enrollments and program referrals
type Repository interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	CreateInscripcion(ctx context.Context, i *InscripcionPrograma) error
	GetInscripcion(ctx context.Context, id types.ID) (*InscripcionPrograma, error)
	GetInscripcionPorPar(ctx context.Context, ciudadanoID, programaID types.ID) (*InscripcionPrograma, error)
	ListInscripciones(ctx context.Context, filter InscripcionFilter) ([]*InscripcionPrograma, error)

	CreateDerivacion(ctx context.Context, d *DerivacionPrograma) error
	GetDerivacion(ctx context.Context, id types.ID) (*DerivacionPrograma, error)
	ListDerivaciones(ctx context.Context, filter DerivacionFilter) ([]*DerivacionPrograma, error)
}
