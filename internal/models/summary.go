package models

import "time"

// Specialty is a tax-topic tag used to route a case to an expert.
type Specialty string

const (
	SpecialtyAuditDefense  Specialty = "defensa_fiscal"
	SpecialtyAnnualFiling  Specialty = "declaraciones"
	SpecialtyInvoicing     Specialty = "facturacion"
	SpecialtyPayroll       Specialty = "nomina"
	SpecialtyTaxPlanning   Specialty = "planeacion_fiscal"
	SpecialtyTaxRegime     Specialty = "regimen_fiscal"
	SpecialtyVAT           Specialty = "iva"
	SpecialtyForeignTrade  Specialty = "comercio_exterior"
	SpecialtyGeneralAdvice Specialty = "consultoria_general"
)

// CaseSummary is the handoff artifact produced once per escalation event.
type CaseSummary struct {
	Level               SeverityLevel `json:"level"`
	DetectedSpecialties []Specialty   `json:"detected_specialties"`
	UserQuery           string        `json:"user_query"`
	ConversationContext string        `json:"conversation_context"`
	Urgency             Urgency       `json:"urgency"`
	GeneratedAt         time.Time     `json:"generated_at"`
}
