package session

import "fmt"

func greetingText(maxQuestions int) string {
	return fmt.Sprintf("¡Hola! Soy el asistente fiscal de Kontify+. "+
		"Tienes %d preguntas gratuitas sobre impuestos en México. ¿En qué te puedo ayudar?", maxQuestions)
}
