package classifier

import (
	"strings"

	"github.com/xaenox/kontify-triage/internal/models"
)

// Classifier assigns a severity level to an inbound message in the context
// of the conversation so far.
type Classifier interface {
	Classify(message string, history []models.Message) models.SeverityLevel
}

// Keywords that signal an urgent case. Matching is plain substring
// containment on lower-cased text, so accented and unaccented spellings are
// both listed.
var RedKeywords = []string{
	"auditoría",
	"auditoria",
	"revisión del sat",
	"revision del sat",
	"requerimiento",
	"multa",
	"recargos",
	"crédito fiscal",
	"credito fiscal",
	"embargo",
	"embargaron",
	"congelaron",
	"cuenta bloqueada",
	"cuentas bloqueadas",
	"sellos cancelados",
	"sello digital cancelado",
	"restricción del csd",
	"restriccion del csd",
	"lista negra",
	"69-b",
	"demanda",
	"clausura",
	"urgente",
	"audit",
	"fine",
	"tax lien",
	"lawsuit",
	"seizure",
	"urgent",
}

// Keywords that signal a case that needs expert validation.
var YellowKeywords = []string{
	"declaración anual",
	"declaracion anual",
	"complementaria",
	"planeación fiscal",
	"planeacion fiscal",
	"reestructura",
	"reestructuración",
	"reestructuracion",
	"nómina",
	"nomina",
	"cambio de régimen",
	"cambio de regimen",
	"annual filing",
	"complementary filing",
	"tax planning",
	"restructuring",
	"payroll",
	"regime change",
}

// KeywordClassifier is a static, priority-ordered keyword lookup:
// red dominates yellow, yellow dominates green. It has no state.
type KeywordClassifier struct {
	red    []string
	yellow []string
}

// NewKeywordClassifier returns a classifier over the default keyword sets.
func NewKeywordClassifier() *KeywordClassifier {
	return NewKeywordClassifierWith(RedKeywords, YellowKeywords)
}

// NewKeywordClassifierWith builds a classifier over custom keyword sets.
// Keywords are lower-cased once here.
func NewKeywordClassifierWith(red, yellow []string) *KeywordClassifier {
	return &KeywordClassifier{
		red:    lowerAll(red),
		yellow: lowerAll(yellow),
	}
}

// Classify checks the new message and the accumulated history against the
// red set first, then the yellow set. First match wins.
func (c *KeywordClassifier) Classify(message string, history []models.Message) models.SeverityLevel {
	current := strings.ToLower(message)
	past := strings.ToLower(joinContents(history))

	if containsAny(current, c.red) || containsAny(past, c.red) {
		return models.SeverityRed
	}
	if containsAny(current, c.yellow) || containsAny(past, c.yellow) {
		return models.SeverityYellow
	}
	return models.SeverityGreen
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func joinContents(history []models.Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
