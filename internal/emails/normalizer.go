// Package emails turns provider messages into normalized records and
// embedded chunks ready for the vector repository.
package emails

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"mailchat/internal/apperrors"
	"mailchat/internal/models"
)

// Normalize converts a provider message into an EmailRecord. Messages
// without an id, a payload, or any usable text are rejected as malformed;
// the sync engine records those and moves on.
func Normalize(raw *models.RawMessage) (*models.EmailRecord, error) {
	if raw == nil || raw.ID == "" {
		return nil, apperrors.MalformedMessage("", "missing message id")
	}
	if raw.Payload == nil {
		return nil, apperrors.MalformedMessage(raw.ID, "missing payload")
	}

	record := &models.EmailRecord{
		MessageID: raw.ID,
		ThreadID:  raw.ThreadID,
		Subject:   decodeHeader(headerValue(raw.Payload, "Subject")),
		From:      decodeHeader(headerValue(raw.Payload, "From")),
		To:        decodeHeader(headerValue(raw.Payload, "To")),
		Snippet:   strings.TrimSpace(raw.Snippet),
		Labels:    append([]string(nil), raw.LabelIDs...),
		Date:      messageDate(raw),
	}
	if record.Date.IsZero() {
		return nil, apperrors.MalformedMessage(raw.ID, "missing timestamp")
	}

	body, hasAttachments := extractBody(raw.Payload)
	body = normalizeWhitespace(body)
	if body == "" {
		// No text parts at all: the provider snippet is the best we have
		body = record.Snippet
	}
	if body == "" && record.Subject == "" {
		return nil, apperrors.MalformedMessage(raw.ID, "no usable text content")
	}
	record.Body = body
	record.HasAttachments = hasAttachments
	record.ContentHash = ContentHash(record.Subject, record.Body)

	return record, nil
}

// ContentHash fingerprints the searchable text of a message. Label-only
// changes leave the hash untouched, so unchanged messages skip re-indexing.
func ContentHash(subject, body string) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{'\n'})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// extractBody walks the payload tree, preferring plain text parts and
// falling back to cleaned HTML. Parts carrying a filename count as
// attachments and contribute no text.
func extractBody(payload *models.MessagePart) (string, bool) {
	var plainParts []string
	var htmlParts []string
	hasAttachments := false

	var walk func(part *models.MessagePart)
	walk = func(part *models.MessagePart) {
		if part == nil {
			return
		}

		if part.Filename != "" {
			hasAttachments = true
		} else {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain"):
				if text := decodePartText(part); text != "" {
					plainParts = append(plainParts, text)
				}
			case strings.HasPrefix(part.MimeType, "text/html"):
				if text := decodePartText(part); text != "" {
					htmlParts = append(htmlParts, text)
				}
			}
		}

		for i := range part.Parts {
			walk(&part.Parts[i])
		}
	}
	walk(payload)

	// Prefer plain text over HTML
	if len(plainParts) > 0 {
		return strings.Join(plainParts, "\n\n"), hasAttachments
	}
	if len(htmlParts) > 0 {
		return cleanHTML(strings.Join(htmlParts, "\n\n")), hasAttachments
	}

	return "", hasAttachments
}

// decodePartText returns the decoded text of one body part. Provider data
// arrives base64url-encoded; a content-transfer-encoding declared on the
// part headers is decoded afterwards.
func decodePartText(part *models.MessagePart) string {
	text := decodePartData(part.Data)
	if text == "" {
		return ""
	}

	switch strings.ToLower(strings.TrimSpace(headerValue(part, "Content-Transfer-Encoding"))) {
	case "base64":
		if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text)); err == nil {
			return string(decoded)
		}
	case "quoted-printable":
		if decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(text))); err == nil {
			return string(decoded)
		}
	}

	return text
}

// decodePartData decodes provider body data. Gmail emits unpadded base64url;
// padded variants show up when payloads pass through other tooling, so the
// padding is stripped before decoding.
func decodePartData(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

// headerValue looks up a header by name, case-insensitively
func headerValue(part *models.MessagePart, name string) string {
	for key, value := range part.Headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// messageDate parses the Date header, falling back to the provider's
// internal timestamp. Zero when the message carries neither.
func messageDate(raw *models.RawMessage) time.Time {
	if dateStr := headerValue(raw.Payload, "Date"); dateStr != "" {
		if date, err := mail.ParseDate(dateStr); err == nil {
			return date
		}
	}
	if raw.InternalDate > 0 {
		return time.UnixMilli(raw.InternalDate)
	}
	return time.Time{}
}

// normalizeWhitespace trims and collapses runs of blank lines
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

// cleanHTML removes HTML tags (basic implementation)
func cleanHTML(html string) string {
	// Remove script and style tags with their contents
	html = removeTagsWithContent(html, "script")
	html = removeTagsWithContent(html, "style")

	// Replace common HTML entities
	html = strings.ReplaceAll(html, "&nbsp;", " ")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&quot;", "\"")
	html = strings.ReplaceAll(html, "&#39;", "'")
	html = strings.ReplaceAll(html, "<br>", "\n")
	html = strings.ReplaceAll(html, "<br/>", "\n")
	html = strings.ReplaceAll(html, "<br />", "\n")
	html = strings.ReplaceAll(html, "</p>", "\n\n")
	html = strings.ReplaceAll(html, "</div>", "\n")

	// Remove all remaining HTML tags
	var result strings.Builder
	inTag := false
	for _, char := range html {
		if char == '<' {
			inTag = true
			continue
		}
		if char == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(char)
		}
	}

	// Clean up whitespace
	text := result.String()
	text = strings.TrimSpace(text)

	// Remove excessive newlines
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return text
}

// removeTagsWithContent removes HTML tags and their content
func removeTagsWithContent(html, tag string) string {
	openTag := "<" + tag
	closeTag := "</" + tag + ">"

	for {
		start := strings.Index(strings.ToLower(html), strings.ToLower(openTag))
		if start == -1 {
			break
		}

		// Find the closing tag
		end := strings.Index(strings.ToLower(html[start:]), strings.ToLower(closeTag))
		if end == -1 {
			break
		}
		end += start + len(closeTag)

		// Remove the section
		html = html[:start] + html[end:]
	}

	return html
}

// decodeHeader decodes MIME encoded headers
func decodeHeader(header string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}
