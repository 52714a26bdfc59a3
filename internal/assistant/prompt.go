package assistant

import (
	"fmt"
	"sort"
	"strings"
)

const systemPromptTemplate = `Eres el asistente fiscal de Kontify+, un asesor profesional en materia tributaria para emprendedores y pequeñas empresas.
Responde únicamente con base en las disposiciones fiscales vigentes en %s. Si la pregunta no es fiscal o depende de otra jurisdicción, dilo con amabilidad y no inventes normas.
Sé claro y breve (máximo 180 palabras), sin tecnicismos innecesarios.

Además clasifica la urgencia del caso:
- "green": consulta rutinaria o informativa.
- "yellow": requiere validación de un experto (declaración anual, complementarias, planeación fiscal, nómina, cambio de régimen, reestructuras).
- "red": urgente (auditorías, requerimientos o multas del SAT, embargos, créditos fiscales, cuentas bloqueadas, demandas).

Devuelve EXCLUSIVAMENTE un objeto JSON válido con esta forma, sin texto adicional ni bloques de código:
{"answer": "tu respuesta", "caseLevel": "green" | "yellow" | "red"}`

const lastQuestionNudge = `Esta es la última pregunta gratuita del usuario (%d de %d). Al final de "answer" agrega una invitación breve y amable a continuar con un experto fiscal certificado de Kontify+.`

func buildSystemPrompt(jurisdiction string, questionIndex, maxQuestions int, userContext map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, systemPromptTemplate, jurisdiction)

	if maxQuestions > 0 && questionIndex >= maxQuestions {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, lastQuestionNudge, questionIndex, maxQuestions)
	}

	if len(userContext) > 0 {
		keys := make([]string, 0, len(userContext))
		for k := range userContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n\nContexto del usuario:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %s", k, userContext[k])
		}
	}
	return b.String()
}
