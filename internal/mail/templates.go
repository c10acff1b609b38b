package mail

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

var (
	// ErrTemplateNotFound is returned when a template name does not exist for
	// the resolved language.
	ErrTemplateNotFound = errors.New("mail template not found")
)

// SupportedLanguages is the fixed set of storefront locales templates exist
// for. Anything else falls back to the registry's default language.
var SupportedLanguages = []string{"en", "de", "fr", "es"}

// Message is a rendered email.
type Message struct {
	Subject string
	Body    string
}

// Registry holds the per-language template bodies and renders them with
// per-send variables.
type Registry struct {
	defaultLanguage string
	templates       map[string]map[string]rawTemplate // name -> language -> template
}

type rawTemplate struct {
	subject *template.Template
	body    *template.Template
}

// NewRegistry builds the registry with the built-in template set.
func NewRegistry(defaultLanguage string) *Registry {
	if !isSupported(defaultLanguage) {
		defaultLanguage = "en"
	}
	r := &Registry{
		defaultLanguage: defaultLanguage,
		templates:       make(map[string]map[string]rawTemplate),
	}
	for name, langs := range builtinTemplates {
		r.templates[name] = make(map[string]rawTemplate, len(langs))
		for lang, tpl := range langs {
			r.templates[name][lang] = rawTemplate{
				subject: template.Must(template.New(name + "/" + lang + "/subject").Parse(tpl.Subject)),
				body:    template.Must(template.New(name + "/" + lang + "/body").Parse(tpl.Body)),
			}
		}
	}
	return r
}

// ResolveLanguage maps an input language to a supported one, falling back to
// the default language rather than erroring.
func (r *Registry) ResolveLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if isSupported(lang) {
		return lang
	}
	return r.defaultLanguage
}

// Render substitutes variables into the named template for the given
// language. Unsupported languages fall back to the default; a name missing
// for the resolved language is ErrTemplateNotFound.
func (r *Registry) Render(name, lang string, vars map[string]string) (Message, error) {
	lang = r.ResolveLanguage(lang)

	langs, ok := r.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("template %s: %w", name, ErrTemplateNotFound)
	}
	tpl, ok := langs[lang]
	if !ok {
		tpl, ok = langs[r.defaultLanguage]
		if !ok {
			return Message{}, fmt.Errorf("template %s, language %s: %w", name, lang, ErrTemplateNotFound)
		}
	}

	var subject, body strings.Builder
	if err := tpl.subject.Execute(&subject, vars); err != nil {
		return Message{}, fmt.Errorf("rendering subject of %s: %w", name, err)
	}
	if err := tpl.body.Execute(&body, vars); err != nil {
		return Message{}, fmt.Errorf("rendering body of %s: %w", name, err)
	}

	return Message{Subject: subject.String(), Body: body.String()}, nil
}

func isSupported(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

type templateText struct {
	Subject string
	Body    string
}

// builtinTemplates is the static template content. Variable names match the
// keys the fulfillment service and the mail endpoint provide.
var builtinTemplates = map[string]map[string]templateText{
	"order-confirmation": {
		"en": {
			Subject: "Your CookLab order {{.OrderID}}",
			Body: "Hi {{.Name}},\n\nthank you for your order! Your access to {{.ProductName}} is being set up" +
				" and a confirmation may take a few minutes to arrive.\n\nHappy cooking,\nThe CookLab team\n",
		},
		"de": {
			Subject: "Deine CookLab-Bestellung {{.OrderID}}",
			Body: "Hallo {{.Name}},\n\nvielen Dank für deine Bestellung! Dein Zugang zu {{.ProductName}} wird gerade" +
				" eingerichtet; die Bestätigung kann ein paar Minuten dauern.\n\nViel Spaß beim Kochen,\nDein CookLab-Team\n",
		},
		"fr": {
			Subject: "Votre commande CookLab {{.OrderID}}",
			Body: "Bonjour {{.Name}},\n\nmerci pour votre commande ! Votre accès à {{.ProductName}} est en cours" +
				" d'activation ; la confirmation peut prendre quelques minutes.\n\nBonne cuisine,\nL'équipe CookLab\n",
		},
		"es": {
			Subject: "Tu pedido de CookLab {{.OrderID}}",
			Body: "Hola {{.Name}},\n\n¡gracias por tu pedido! Tu acceso a {{.ProductName}} se está activando;" +
				" la confirmación puede tardar unos minutos.\n\nFeliz cocina,\nEl equipo de CookLab\n",
		},
	},
	"shipping-notice": {
		"en": {
			Subject: "Your recipe book is on its way",
			Body: "Hi {{.Name}},\n\nyour parcel to {{.Country}} has been handed to the carrier." +
				"\n\nHappy cooking,\nThe CookLab team\n",
		},
		"de": {
			Subject: "Dein Rezeptbuch ist unterwegs",
			Body: "Hallo {{.Name}},\n\ndein Paket nach {{.Country}} wurde dem Versanddienst übergeben." +
				"\n\nViel Spaß beim Kochen,\nDein CookLab-Team\n",
		},
	},
	"fulfillment-delayed": {
		"en": {
			Subject: "We are still setting up your course access",
			Body: "Hi {{.Name}},\n\nyour payment for order {{.OrderID}} went through, but setting up your course" +
				" access is taking longer than usual. We are on it and will email you as soon as it is ready.\n\nThe CookLab team\n",
		},
	},
}
