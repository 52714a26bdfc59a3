package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xaenox/kontify-triage/internal/models"
	"github.com/xaenox/kontify-triage/internal/session"
)

const helpText = `Comandos disponibles:
/start - Iniciar la conversación
/help - Mostrar esta ayuda
/status - Ver tus preguntas gratuitas y el nivel de tu caso
/contact Nombre; correo; whatsapp - Dejar tus datos de contacto
/escalate - Pedir que un experto fiscal revise tu caso
/reset - Empezar una conversación nueva

Escribe tu pregunta fiscal y te responderé.`

const contactPrompt = `Para que un experto fiscal certificado de Kontify+ dé seguimiento a tu caso, compártenos tus datos con:

/contact Nombre completo; correo@ejemplo.com; 55 1234 5678`

const contactUsage = "Formato: /contact Nombre completo; correo@ejemplo.com; 55 1234 5678"

var fieldNames = map[string]string{
	"name":            "nombre",
	"email":           "correo",
	"whatsapp_number": "WhatsApp",
}

var fieldProblems = map[string]string{
	"required":                    "es obligatorio",
	"invalid format":              "no tiene un formato válido",
	"contains invalid characters": "contiene caracteres no válidos",
}

func levelLabel(l models.SeverityLevel) string {
	switch l {
	case models.SeverityRed:
		return "🔴 urgente"
	case models.SeverityYellow:
		return "🟡 requiere validación de un experto"
	default:
		return "🟢 consulta general"
	}
}

func replyText(out session.Outcome) string {
	var b strings.Builder
	b.WriteString(out.Reply.Content)

	st := out.State
	if st.SeverityLevel.AtLeast(models.SeverityYellow) && !st.NeedsContactData {
		fmt.Fprintf(&b, "\n\nNivel del caso: %s. Usa /escalate para que un experto lo revise.", levelLabel(st.SeverityLevel))
	}
	if st.CanAskMore {
		fmt.Fprintf(&b, "\n\nPreguntas gratuitas restantes: %d de %d.", st.QuestionsRemaining, st.MaxQuestions)
	} else {
		b.WriteString("\n\nEsta fue tu última pregunta gratuita.")
	}
	return b.String()
}

func rejectionText(out session.Outcome) string {
	if out.Reason == session.ReasonAwaitingContact {
		return "Ya usaste tus preguntas gratuitas. " + contactUsage
	}
	if out.State.Contact != nil {
		return "Ya usaste tus preguntas gratuitas. Un experto fiscal te contactará pronto con los datos que nos dejaste."
	}
	return "Ya usaste tus preguntas gratuitas. En un momento te pediremos tus datos para que un experto te contacte."
}

func statusText(st session.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Preguntas gratuitas usadas: %d de %d\n", st.QuestionsUsed, st.MaxQuestions)
	fmt.Fprintf(&b, "Nivel del caso: %s\n", levelLabel(st.SeverityLevel))
	if st.Contact != nil {
		fmt.Fprintf(&b, "Contacto: %s\n", st.Contact.Name)
	} else if st.NeedsContactData {
		b.WriteString("Pendiente: tus datos de contacto\n")
	}
	if st.LeadID != "" {
		fmt.Fprintf(&b, "Folio de seguimiento: %s\n", st.LeadID)
	}
	return b.String()
}

func validationText(err *models.ValidationError) string {
	keys := make([]string, 0, len(err.Fields))
	for k := range err.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{"Revisa tus datos:"}
	for _, k := range keys {
		name := fieldNames[k]
		if name == "" {
			name = k
		}
		problem, ok := fieldProblems[err.Fields[k]]
		if !ok {
			problem = "debe tener entre 10 y 13 dígitos"
		}
		lines = append(lines, fmt.Sprintf("- El %s %s.", name, problem))
	}
	lines = append(lines, contactUsage)
	return strings.Join(lines, "\n")
}

// parseContact reads "Nombre; correo; whatsapp".
func parseContact(args string) (models.ContactData, bool) {
	parts := strings.Split(args, ";")
	if len(parts) != 3 {
		return models.ContactData{}, false
	}
	return models.ContactData{
		Name:           strings.TrimSpace(parts[0]),
		Email:          strings.TrimSpace(parts[1]),
		WhatsAppNumber: strings.TrimSpace(parts[2]),
	}, true
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
