package nachec

import (
	"testing"

	"github.com/gob-chaco/nodo/internal/shared/errors"
	"github.com/stretchr/testify/assert"
)

func TestTablaDeTransiciones(t *testing.T) {
	permitidas := map[EstadoNachec][]EstadoNachec{
		EstadoDerivado:       {EstadoEnRevision, EstadoRechazado},
		EstadoEnRevision:     {EstadoAAsignar, EstadoRechazado},
		EstadoAAsignar:       {EstadoAsignado},
		EstadoAsignado:       {EstadoEnRelevamiento, EstadoSuspendido},
		EstadoEnRelevamiento: {EstadoEvaluado, EstadoSuspendido},
		EstadoEvaluado:       {EstadoPlanDefinido, EstadoEnRelevamiento, EstadoSuspendido},
		EstadoPlanDefinido:   {EstadoEnEjecucion, EstadoSuspendido},
		EstadoEnEjecucion:    {EstadoEnSeguimiento, EstadoSuspendido},
		EstadoEnSeguimiento:  {EstadoCerrado, EstadoSuspendido},
		EstadoSuspendido: {
			EstadoAsignado, EstadoEnRelevamiento, EstadoEvaluado,
			EstadoPlanDefinido, EstadoEnEjecucion, EstadoEnSeguimiento,
		},
	}

	// Every state pair, allowed or not, agrees with the table
	for _, desde := range Estados() {
		esperadas := map[EstadoNachec]bool{}
		for _, hasta := range permitidas[desde] {
			esperadas[hasta] = true
		}
		for _, hasta := range Estados() {
			got := PuedeTransicionar(desde, hasta)
			assert.Equal(t, esperadas[hasta], got, "%s -> %s", desde, hasta)

			err := ValidarTransicion(desde, hasta)
			if esperadas[hasta] {
				assert.NoError(t, err, "%s -> %s", desde, hasta)
			} else {
				assert.True(t, errors.IsCode(err, errors.CodeIllegalTransition), "%s -> %s", desde, hasta)
			}
		}
	}
}

func TestEstadosTerminales(t *testing.T) {
	assert.True(t, EsTerminal(EstadoCerrado))
	assert.True(t, EsTerminal(EstadoRechazado))

	for _, estado := range Estados() {
		if estado == EstadoCerrado || estado == EstadoRechazado {
			continue
		}
		assert.False(t, EsTerminal(estado), "estado %s", estado)
	}
}

func TestEstaAbierto(t *testing.T) {
	c := &CasoNachec{Estado: EstadoEnEjecucion}
	assert.True(t, c.EstaAbierto())

	c.Estado = EstadoCerrado
	assert.False(t, c.EstaAbierto())

	c.Estado = EstadoRechazado
	assert.False(t, c.EstaAbierto())
}
