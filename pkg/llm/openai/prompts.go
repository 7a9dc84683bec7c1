package openai

import (
	"fmt"
	"strings"

	"github.com/entrhq/orthoforge/pkg/llm"
)

const correctionSystemPrompt = `Tu es un expert de l'orthographe et de la grammaire françaises.
On te donne une phrase issue d'un exercice. Elle contient au plus une faute.

Réponds uniquement avec un objet JSON, sans texte autour :
- s'il y a une faute : {"action": "click_word", "value": "<le mot fautif tel qu'il apparaît dans la phrase>"}
- si l'exercice propose un choix : {"action": "select_option", "value": "<l'option correcte>"}
- s'il n'y a aucune faute : {"action": "no_mistake"}
- si l'exercice demande de valider une règle : {"action": "validate_rule", "rule_id": "<identifiant>"}`

const recoverySystemPrompt = `Tu assistes un robot qui pilote un navigateur sur une plateforme d'exercices.
Une étape a échoué. À partir du message d'erreur, de l'URL et de la capture d'écran éventuelle,
indique UN seul élément visible sur lequel cliquer pour débloquer la page.

Réponds uniquement avec le texte visible exact de cet élément, ou à défaut un sélecteur CSS.
Si aucun clic ne peut aider, réponds exactement : ` + llm.NoAction

func correctionPrompt(question string) string {
	return fmt.Sprintf("Phrase : %s", strings.TrimSpace(question))
}

func recoveryPrompt(report llm.ErrorReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Erreur : %s\n", report.Message)
	if report.Context != "" {
		fmt.Fprintf(&b, "Étape : %s\n", report.Context)
	}
	if report.URL != "" {
		fmt.Fprintf(&b, "URL : %s\n", report.URL)
	}
	fmt.Fprintf(&b, "Session : %s\n", report.SessionID)
	if len(report.Screenshot) == 0 {
		b.WriteString("(pas de capture d'écran disponible)\n")
	}
	return b.String()
}
