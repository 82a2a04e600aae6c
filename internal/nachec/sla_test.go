package nachec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fecha(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSumarDiasHabiles(t *testing.T) {
	tests := []struct {
		name  string
		desde time.Time
		dias  int
		want  time.Time
	}{
		{"viernes mas dos salta el fin de semana", fecha(2024, time.January, 5), 2, fecha(2024, time.January, 9)},
		{"lunes mas dos queda en la semana", fecha(2024, time.January, 8), 2, fecha(2024, time.January, 10)},
		{"lunes mas siete cruza un fin de semana", fecha(2024, time.January, 8), 7, fecha(2024, time.January, 17)},
		{"sabado arranca a contar el lunes", fecha(2024, time.January, 6), 1, fecha(2024, time.January, 8)},
		{"cero dias no avanza", fecha(2024, time.January, 5), 0, fecha(2024, time.January, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SumarDiasHabiles(tt.desde, tt.dias))
		})
	}
}

func TestCalcularSLAs(t *testing.T) {
	derivacion := fecha(2024, time.January, 5) // viernes

	assert.Equal(t, fecha(2024, time.January, 9), CalcularSLARevision(derivacion))
	assert.Equal(t, fecha(2024, time.January, 16), CalcularSLARelevamiento(derivacion))
}

func TestEstaVencido(t *testing.T) {
	hoy := fecha(2024, time.March, 15)

	assert.False(t, EstaVencido(nil, hoy), "sin fecha nunca vence")

	pasada := fecha(2024, time.March, 14)
	assert.True(t, EstaVencido(&pasada, hoy))

	mismaFecha := fecha(2024, time.March, 15)
	assert.False(t, EstaVencido(&mismaFecha, hoy), "el dia del vencimiento sigue en plazo")

	futura := fecha(2024, time.March, 18)
	assert.False(t, EstaVencido(&futura, hoy))
}
