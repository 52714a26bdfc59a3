package triage

import "github.com/xaenox/kontify-triage/internal/models"

// Topic groups a specialty tag with the keywords that reveal it.
type Topic struct {
	Specialty models.Specialty
	Keywords  []string
}

// DefaultTopics is checked in order; the order fixes the order of
// detected specialties in a summary.
var DefaultTopics = []Topic{
	{
		Specialty: models.SpecialtyAuditDefense,
		Keywords: []string{
			"auditoría", "auditoria", "requerimiento", "multa", "embargo", "crédito fiscal",
			"credito fiscal", "revisión", "revision", "69-b", "lista negra", "demanda", "audit",
		},
	},
	{
		Specialty: models.SpecialtyAnnualFiling,
		Keywords: []string{
			"declaración", "declaracion", "anual", "complementaria", "mensual", "provisional",
			"annual filing",
		},
	},
	{
		Specialty: models.SpecialtyInvoicing,
		Keywords: []string{"factura", "cfdi", "timbrado", "sello digital", "csd", "complemento de pago", "invoice"},
	},
	{
		Specialty: models.SpecialtyPayroll,
		Keywords: []string{"nómina", "nomina", "imss", "infonavit", "empleado", "trabajador", "payroll"},
	},
	{
		Specialty: models.SpecialtyTaxPlanning,
		Keywords: []string{
			"planeación", "planeacion", "deducción", "deduccion", "deducible", "estrategia fiscal",
			"reestructura", "tax planning",
		},
	},
	{
		Specialty: models.SpecialtyTaxRegime,
		Keywords: []string{
			"régimen", "regimen", "resico", "persona moral", "persona física", "persona fisica",
			"actividad empresarial", "rfc", "alta en el sat",
		},
	},
	{
		Specialty: models.SpecialtyVAT,
		Keywords: []string{"iva", "isr", "ieps", "saldo a favor", "devolución", "devolucion"},
	},
	{
		Specialty: models.SpecialtyForeignTrade,
		Keywords: []string{"importación", "importacion", "exportación", "exportacion", "aduana", "pedimento", "immex"},
	},
}
