package oerr

import "strings"

// FallbackMessage returns the user-facing message for an error kind in the
// requested language. Supported languages: en, it, id. Unknown languages fall
// back to English.
func FallbackMessage(kind Kind, lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) > 2 {
		lang = lang[:2]
	}

	msgs, ok := fallbackMessages[kind]
	if !ok {
		msgs = fallbackMessages[KindUnknown]
	}
	if msg, ok := msgs[lang]; ok {
		return msg
	}
	return msgs["en"]
}

var fallbackMessages = map[Kind]map[string]string{
	KindLLMUnavailable: {
		"en": "I'm having trouble reaching my language models right now. Please try again in a moment.",
		"it": "Al momento non riesco a raggiungere i modelli linguistici. Riprova tra un attimo.",
		"id": "Saat ini saya kesulitan menghubungi model bahasa. Silakan coba lagi sebentar lagi.",
	},
	KindTimeout: {
		"en": "That took longer than expected and was cancelled. Please try a shorter question.",
		"it": "L'operazione ha impiegato troppo tempo ed è stata annullata. Prova con una domanda più breve.",
		"id": "Permintaan memakan waktu terlalu lama dan dibatalkan. Silakan coba pertanyaan yang lebih singkat.",
	},
	KindUnknown: {
		"en": "Something went wrong on my side. Please try again.",
		"it": "Si è verificato un problema. Riprova.",
		"id": "Terjadi kesalahan di pihak kami. Silakan coba lagi.",
	},
}
