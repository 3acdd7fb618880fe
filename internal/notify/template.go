package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
)

const defaultTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: auto; padding: 20px; border: 1px solid #ddd; border-radius: 10px;">
    <h2 style="text-align: center; color: #55833D;">Votre simulation de rentabilité</h2>
    <p>Bonjour <strong>{{.Name}} {{.Surname}}</strong>,</p>
    <p>Merci d'avoir utilisé notre simulateur de rentabilité Opaline.</p>
    <ul>
      <li>Chiffre d'affaires mensuel : {{.Revenue}} €</li>
      <li>Coût total : {{.TotalCost}} €</li>
      <li>Bénéfice net estimé : {{.NetProfit}} €</li>
    </ul>
    <p>Notre équipe revient vers vous très prochainement.</p>
  </div>
</body>
</html>
`

// TemplateData is the set of fields available to the email template.
type TemplateData struct {
	Name      string
	Surname   string
	Email     string
	Revenue   string
	TotalCost string
	NetProfit string
}

// DefaultTemplate returns the built-in confirmation email.
func DefaultTemplate() *template.Template {
	return template.Must(template.New("confirmation").Option("missingkey=error").Parse(defaultTemplate))
}

// LoadTemplate parses the template file at path, or returns the built-in one when path is empty.
func LoadTemplate(path string) (*template.Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("notify: read template: %w", err)
	}
	tpl, err := template.New("confirmation").Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("notify: parse template: %w", err)
	}
	return tpl, nil
}

func render(tpl *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
