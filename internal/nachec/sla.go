package nachec

import "time"

// Default SLA windows, in business days
const (
	DiasSLARevision     = 2
	DiasSLARelevamiento = 7
)

// SumarDiasHabiles advances from desde one calendar day at a time,
// counting only Monday through Friday, until dias business days have
// elapsed. The start date itself never counts.
func SumarDiasHabiles(desde time.Time, dias int) time.Time {
	fecha := desde
	restantes := dias
	for restantes > 0 {
		fecha = fecha.AddDate(0, 0, 1)
		if fecha.Weekday() != time.Saturday && fecha.Weekday() != time.Sunday {
			restantes--
		}
	}
	return fecha
}

// CalcularSLARevision returns the review deadline for a derivation date
func CalcularSLARevision(fechaDerivacion time.Time) time.Time {
	return SumarDiasHabiles(fechaDerivacion, DiasSLARevision)
}

// CalcularSLARelevamiento returns the field-survey deadline for an
// assignment date
func CalcularSLARelevamiento(fechaAsignacion time.Time) time.Time {
	return SumarDiasHabiles(fechaAsignacion, DiasSLARelevamiento)
}

// EstaVencido reports whether the deadline has lapsed. An unset
// deadline is never overdue; the deadline day itself is still on time.
func EstaVencido(fechaSLA *time.Time, hoy time.Time) bool {
	if fechaSLA == nil {
		return false
	}
	return truncarDia(hoy).After(truncarDia(*fechaSLA))
}

func truncarDia(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
