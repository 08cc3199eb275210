package domain

// previewMaxRunes bounds the denormalized conversation snippet.
const previewMaxRunes = 100

// PreviewText derives the conversation-list snippet for a message. Attachment
// messages without a text body fall back to the attachment name.
func PreviewText(content string, attachmentName *string) string {
	if content == "" && attachmentName != nil {
		return *attachmentName
	}
	runes := []rune(content)
	if len(runes) <= previewMaxRunes {
		return content
	}
	return string(runes[:previewMaxRunes-1]) + "…"
}
