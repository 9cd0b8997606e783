package degrade

// Message keys.
const (
	KeyBrokenLink                 = "broken_link"
	KeyNotSupported               = "not_supported"
	KeyCopyText                   = "copy_text"
	KeyPartiallySupported         = "partially_supported"
	KeyPartiallySupportedCopyText = "partially_supported_copy_text"
	KeyCopyButton                 = "copy_button"
	KeyCopyError                  = "copy_error"
	KeyCopySuccess                = "copy_success"
	KeyPresentationSource         = "presentation_source"
	KeySlide                      = "slide"
	KeyToggleFullscreen           = "toggle_fullscreen"
	KeyNext                       = "next"
	KeyPrevious                   = "previous"
	KeyJumpTo                     = "jump_to"
)

// DefaultLocale is used when no requested locale matches.
const DefaultLocale = "en"

// Messages maps message keys to text. KeySlide is a fmt pattern taking the
// one-based slide number.
type Messages map[string]string

// Locales maps a BCP 47 tag to its messages.
type Locales map[string]Messages

// DefaultLocales returns the built-in message tables.
func DefaultLocales() Locales {
	return Locales{
		"en": {
			KeyBrokenLink:                 "Cannot load content",
			KeyNotSupported:               "This content cannot be viewed offline",
			KeyCopyText:                   "Please copy this link in your browser to see the original source",
			KeyPartiallySupported:         "Some portion of this content may not be viewable offline",
			KeyPartiallySupportedCopyText: "If you encounter problems, please copy this link in your browser to see the original source",
			KeyCopyButton:                 "Copy",
			KeyCopyError:                  "Failed",
			KeyCopySuccess:                "Copied",
			KeyPresentationSource:         "Original at",
			KeySlide:                      "Slide %d",
			KeyToggleFullscreen:           "Toggle Fullscreen",
			KeyNext:                       "Next",
			KeyPrevious:                   "Previous",
			KeyJumpTo:                     "Jump to...",
		},
		"es": {
			KeyBrokenLink:                 "No se pudo cargar este contenido",
			KeyNotSupported:               "Este contenido no se puede ver sin conexión",
			KeyCopyText:                   "Copie este enlace en su navegador si desea ver la fuente original",
			KeyPartiallySupported:         "Puede haber partes de este contenido que no se puedan ver sin conexión",
			KeyPartiallySupportedCopyText: "Si tiene problemas copie este enlace en su navegador para ver la fuente original",
			KeyCopyButton:                 "Copiar",
			KeyCopyError:                  "Falló",
			KeyCopySuccess:                "Copiado",
			KeyPresentationSource:         "Original en",
			KeySlide:                      "Diapositiva %d",
			KeyToggleFullscreen:           "Cambiar modo Pantalla Completa",
			KeyNext:                       "Siguiente",
			KeyPrevious:                   "Anterior",
			KeyJumpTo:                     "Saltar a ...",
		},
	}
}

// Merge returns a copy of l with overrides applied key by key. Locales that
// only exist in overrides are added.
func (l Locales) Merge(overrides map[string]map[string]string) Locales {
	out := make(Locales, len(l)+len(overrides))
	for tag, msgs := range l {
		cp := make(Messages, len(msgs))
		for k, v := range msgs {
			cp[k] = v
		}
		out[tag] = cp
	}
	for tag, msgs := range overrides {
		if out[tag] == nil {
			out[tag] = make(Messages, len(msgs))
		}
		for k, v := range msgs {
			out[tag][k] = v
		}
	}
	return out
}
