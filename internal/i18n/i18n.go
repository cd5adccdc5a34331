// Package i18n holds every line kano-init says to the user. Keys are the
// English text; other languages are registered in a golang.org/x/text
// catalog and selected by BCP 47 tag.
package i18n

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	Hello        = "Hello!"
	Introduction = "I'm KANO. Thanks for bringing me to life."
	AskName      = "What should I call you?"
	NamePrompt   = "Your name: "

	NameEmpty   = "Type a cool name."
	NameCharset = "Just one word, letters or numbers! Try again."
	NameTaken   = "This one is already taken! Try again."
	NameTooLong = "This one is too long by %d characters! Try again."

	FollowRabbit = "%s, follow the white rabbit ..."
	RabbitHiding = "He's hiding in my memory. Can you find him?"
	TypeCommand  = "Type %s"
	ItsATrap     = "%s, it's a trap!"

	BombLead = "Quick, %s, type"
	BombTail = "to escape!"
	TryAgain = "Try again!"

	SwitchesTitle  = "These switches speak in 1s and 0s. This is called binary code."
	SwitchesPrompt = "Press [ENTER] to keep exploring."
)

var translations = map[language.Tag]map[string]string{
	language.Spanish: {
		Hello:          "¡Hola!",
		Introduction:   "Soy KANO. Gracias por darme vida.",
		AskName:        "¿Cómo te llamo?",
		NamePrompt:     "Tu nombre: ",
		NameEmpty:      "Escribe un nombre chulo.",
		NameCharset:    "¡Una sola palabra, letras o números! Prueba otra vez.",
		NameTaken:      "¡Este ya está cogido! Prueba otra vez.",
		NameTooLong:    "¡Este sobra por %d caracteres! Prueba otra vez.",
		FollowRabbit:   "%s, sigue al conejo blanco ...",
		RabbitHiding:   "Se esconde en mi memoria. ¿Puedes encontrarlo?",
		TypeCommand:    "Escribe %s",
		ItsATrap:       "¡%s, es una trampa!",
		BombLead:       "¡Rápido, %s, escribe",
		BombTail:       "para escapar!",
		TryAgain:       "¡Prueba otra vez!",
		SwitchesTitle:  "Estos interruptores hablan en 1 y 0. Se llama código binario.",
		SwitchesPrompt: "Pulsa [ENTER] para seguir explorando.",
	},
}

var (
	buildOnce sync.Once
	cat       *catalog.Builder
	matcher   language.Matcher
	supported []language.Tag
	buildErr  error
)

func build() {
	cat = catalog.NewBuilder(catalog.Fallback(language.English))
	tags := []language.Tag{language.English}
	for tag, msgs := range translations {
		for key, text := range msgs {
			if err := cat.SetString(tag, key, text); err != nil {
				buildErr = fmt.Errorf("catalog %s %q: %w", tag, key, err)
				return
			}
		}
		tags = append(tags, tag)
	}
	supported = tags
	matcher = language.NewMatcher(tags)
}

// Languages lists the tags with a translation, English first.
func Languages() []language.Tag {
	tags := []language.Tag{language.English}
	for tag := range translations {
		tags = append(tags, tag)
	}
	return tags
}

// Printer formats catalog messages in one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// New returns a Printer for the best match of lang. An empty lang falls back
// to $LANG, then English.
func New(lang string) (*Printer, error) {
	buildOnce.Do(build)
	if buildErr != nil {
		return nil, buildErr
	}

	if lang == "" {
		lang = envLanguage()
	}
	tag := language.English
	if lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", lang, err)
		}
		_, idx, conf := matcher.Match(parsed)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Printer{tag: tag, p: message.NewPrinter(tag, message.Catalog(cat))}, nil
}

// Default returns an English printer. It never fails.
func Default() *Printer {
	p, err := New("en")
	if err != nil {
		return &Printer{tag: language.English, p: message.NewPrinter(language.English)}
	}
	return p
}

// envLanguage turns a POSIX locale like es_ES.UTF-8 into es-ES.
func envLanguage() string {
	v := os.Getenv("LANG")
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "C" || v == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(v, "_", "-")
}

// Tag returns the selected language.
func (p *Printer) Tag() language.Tag { return p.tag }

// Sprintf formats the message stored under key.
func (p *Printer) Sprintf(key string, args ...interface{}) string {
	return p.p.Sprintf(key, args...)
}
