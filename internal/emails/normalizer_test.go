package emails

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailchat/internal/apperrors"
	"mailchat/internal/models"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func textPart(mimeType, body string) models.MessagePart {
	return models.MessagePart{MimeType: mimeType, Data: b64(body)}
}

func rawMessage(id string, headers map[string]string, payload models.MessagePart) *models.RawMessage {
	payload.Headers = headers
	return &models.RawMessage{
		ID:           id,
		ThreadID:     "thread-" + id,
		InternalDate: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Payload:      &payload,
	}
}

func TestNormalize_PlainTextMessage(t *testing.T) {
	raw := rawMessage("msg-1", map[string]string{
		"Subject": "Invoice #42",
		"From":    "billing@acme.com",
		"To":      "me@example.com",
		"Date":    "Fri, 01 Mar 2024 10:30:00 +0000",
	}, textPart("text/plain", "Your invoice total is $1,200."))
	raw.LabelIDs = []string{"INBOX", "IMPORTANT"}

	record, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "msg-1", record.MessageID)
	assert.Equal(t, "thread-msg-1", record.ThreadID)
	assert.Equal(t, "Invoice #42", record.Subject)
	assert.Equal(t, "billing@acme.com", record.From)
	assert.Equal(t, "me@example.com", record.To)
	assert.Equal(t, "Your invoice total is $1,200.", record.Body)
	assert.Equal(t, []string{"INBOX", "IMPORTANT"}, record.Labels)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), record.Date.UTC())
	assert.NotEmpty(t, record.ContentHash)
}

func TestNormalize_MultipartPrefersPlainText(t *testing.T) {
	payload := models.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []models.MessagePart{
			textPart("text/html", "<p>HTML version</p>"),
			textPart("text/plain", "Plain version"),
		},
	}

	record, err := Normalize(rawMessage("msg-2", map[string]string{"Subject": "Hello"}, payload))
	require.NoError(t, err)
	assert.Equal(t, "Plain version", record.Body)
}

func TestNormalize_HTMLOnlyGetsCleaned(t *testing.T) {
	html := "<html><head><style>p{color:red}</style></head>" +
		"<body><p>Meeting at 3pm &amp; drinks after</p><script>alert(1)</script></body></html>"
	payload := models.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []models.MessagePart{
			textPart("text/html", html),
		},
	}

	record, err := Normalize(rawMessage("msg-3", map[string]string{"Subject": "Plans"}, payload))
	require.NoError(t, err)
	assert.Equal(t, "Meeting at 3pm & drinks after", record.Body)
	assert.NotContains(t, record.Body, "<")
	assert.NotContains(t, record.Body, "alert")
	assert.NotContains(t, record.Body, "color:red")
}

func TestNormalize_SkipsAttachments(t *testing.T) {
	payload := models.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []models.MessagePart{
			textPart("text/plain", "See attached."),
			{MimeType: "text/plain", Filename: "notes.txt", Data: b64("attachment text")},
			{MimeType: "application/pdf", Filename: "invoice.pdf", Data: b64("%PDF-1.4")},
		},
	}

	record, err := Normalize(rawMessage("msg-4", map[string]string{"Subject": "Files"}, payload))
	require.NoError(t, err)
	assert.Equal(t, "See attached.", record.Body)
	assert.True(t, record.HasAttachments)
}

func TestNormalize_NoAttachmentsOnPlainMessage(t *testing.T) {
	record, err := Normalize(rawMessage("msg-4b", map[string]string{"Subject": "Plain"}, textPart("text/plain", "just text")))
	require.NoError(t, err)
	assert.False(t, record.HasAttachments)
}

func TestNormalize_NestedMultipart(t *testing.T) {
	payload := models.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []models.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []models.MessagePart{
					textPart("text/plain", "Nested plain body"),
					textPart("text/html", "<p>Nested html</p>"),
				},
			},
			{MimeType: "image/png", Filename: "logo.png"},
		},
	}

	record, err := Normalize(rawMessage("msg-5", map[string]string{"Subject": "Nested"}, payload))
	require.NoError(t, err)
	assert.Equal(t, "Nested plain body", record.Body)
}

func TestNormalize_SnippetFallback(t *testing.T) {
	// Attachment-only message: the provider snippet stands in for the body
	raw := rawMessage("msg-5b", map[string]string{"Subject": "Scanned receipt"}, models.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []models.MessagePart{
			{MimeType: "application/pdf", Filename: "receipt.pdf"},
		},
	})
	raw.Snippet = "Receipt for order #8841, total $56.20"

	record, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Receipt for order #8841, total $56.20", record.Body)
	assert.Equal(t, "Receipt for order #8841, total $56.20", record.Snippet)
	assert.True(t, record.HasAttachments)
}

func TestNormalize_SnippetDoesNotReplaceBody(t *testing.T) {
	raw := rawMessage("msg-5c", map[string]string{"Subject": "Update"}, textPart("text/plain", "Full body text"))
	raw.Snippet = "Full body te"

	record, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Full body text", record.Body)
	assert.Equal(t, "Full body te", record.Snippet)
}

func TestNormalize_QuotedPrintablePart(t *testing.T) {
	raw := rawMessage("msg-5d", map[string]string{
		"Subject":                   "Café order",
		"Content-Transfer-Encoding": "quoted-printable",
	}, textPart("text/plain", "Caf=C3=A9 price =E2=82=AC5"))

	record, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Café price €5", record.Body)
}

func TestNormalize_Base64TransferEncodingPart(t *testing.T) {
	inner := base64.StdEncoding.EncodeToString([]byte("Hello from a base64 body"))
	raw := rawMessage("msg-5e", map[string]string{
		"Subject":                   "Encoded",
		"Content-Transfer-Encoding": "base64",
	}, textPart("text/plain", inner))

	record, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Hello from a base64 body", record.Body)
}

func TestNormalize_DecodesEncodedSubject(t *testing.T) {
	// "Caf? Receipt" with an accented e, Q-encoded
	record, err := Normalize(rawMessage("msg-6", map[string]string{
		"Subject": "=?UTF-8?Q?Caf=C3=A9_Receipt?=",
	}, textPart("text/plain", "Thanks for visiting")))

	require.NoError(t, err)
	assert.Equal(t, "Café Receipt", record.Subject)
}

func TestNormalize_HeaderLookupIsCaseInsensitive(t *testing.T) {
	record, err := Normalize(rawMessage("msg-7", map[string]string{
		"subject": "lowercase header",
		"FROM":    "someone@example.com",
	}, textPart("text/plain", "body")))

	require.NoError(t, err)
	assert.Equal(t, "lowercase header", record.Subject)
	assert.Equal(t, "someone@example.com", record.From)
}

func TestNormalize_DateFallsBackToInternalDate(t *testing.T) {
	raw := rawMessage("msg-8", map[string]string{
		"Subject": "No date header",
		"Date":    "not a real date",
	}, textPart("text/plain", "body"))

	record, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), record.Date.UTC())
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	body := "First line\r\n\r\n\r\n\r\nSecond line\n\n\n\nThird line\n\n"
	record, err := Normalize(rawMessage("msg-9", map[string]string{"Subject": "Spacing"}, textPart("text/plain", body)))

	require.NoError(t, err)
	assert.Equal(t, "First line\n\nSecond line\n\nThird line", record.Body)
}

func TestNormalize_MalformedMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  *models.RawMessage
	}{
		{"nil message", nil},
		{"missing id", &models.RawMessage{Payload: &models.MessagePart{MimeType: "text/plain", Data: b64("x")}}},
		{"missing payload", &models.RawMessage{ID: "msg-10"}},
		{
			"no usable text",
			&models.RawMessage{ID: "msg-11", Payload: &models.MessagePart{
				MimeType: "multipart/mixed",
				Parts:    []models.MessagePart{{MimeType: "application/pdf", Filename: "a.pdf"}},
			}},
		},
		{
			"undecodable body and no subject",
			&models.RawMessage{ID: "msg-12", Payload: &models.MessagePart{MimeType: "text/plain", Data: "!!not-base64!!"}},
		},
		{
			"missing timestamp",
			&models.RawMessage{ID: "msg-14", Payload: &models.MessagePart{
				MimeType: "text/plain",
				Headers:  map[string]string{"Subject": "No date anywhere"},
				Data:     b64("body text"),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindMalformedMessage))
		})
	}
}

func TestNormalize_SubjectOnlyMessageSurvives(t *testing.T) {
	payload := models.MessagePart{MimeType: "multipart/mixed", Parts: []models.MessagePart{
		{MimeType: "application/pdf", Filename: "a.pdf"},
	}}

	record, err := Normalize(rawMessage("msg-13", map[string]string{"Subject": "Invoice attached"}, payload))
	require.NoError(t, err)
	assert.Equal(t, "Invoice attached", record.Subject)
	assert.Empty(t, record.Body)
	assert.NotEmpty(t, record.ContentHash)
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("Invoice #42", "Total: $1,200")
	h2 := ContentHash("Invoice #42", "Total: $1,200")
	h3 := ContentHash("Invoice #42", "Total: $1,300")
	h4 := ContentHash("Invoice #43", "Total: $1,200")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4)
	assert.Len(t, h1, 64)
}

func TestContentHash_IgnoresLabels(t *testing.T) {
	// Same text, different labels: the hash must match so label-only
	// changes skip re-indexing
	r1, err := Normalize(rawMessage("msg-14", map[string]string{"Subject": "S"}, textPart("text/plain", "body")))
	require.NoError(t, err)

	raw2 := rawMessage("msg-14", map[string]string{"Subject": "S"}, textPart("text/plain", "body"))
	raw2.LabelIDs = []string{"INBOX", "STARRED"}
	r2, err := Normalize(raw2)
	require.NoError(t, err)

	assert.Equal(t, r1.ContentHash, r2.ContentHash)
}

func TestDecodePartData_PaddedAndUnpadded(t *testing.T) {
	unpadded := base64.RawURLEncoding.EncodeToString([]byte("hello"))
	padded := base64.URLEncoding.EncodeToString([]byte("hello"))

	assert.Equal(t, "hello", decodePartData(unpadded))
	assert.Equal(t, "hello", decodePartData(padded))
	assert.Empty(t, decodePartData(""))
	assert.Empty(t, decodePartData("!!!"))
}
