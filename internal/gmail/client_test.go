package gmail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"mailchat/internal/apperrors"
	"mailchat/internal/config"
)

func TestNewClient_MissingCredentials(t *testing.T) {
	cfg := &config.Config{
		GoogleClientID: "client-id",
		// Secret and refresh token missing
	}

	client, err := NewClient(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "GOOGLE_REFRESH_TOKEN")
}

func TestChangedSince_NonNumericCursor(t *testing.T) {
	// Cursor parsing fails before any API call is made
	client := &Client{}

	page, err := client.ChangedSince(context.Background(), "not-a-history-id", "")
	require.Error(t, err)
	assert.Nil(t, page)
	assert.True(t, apperrors.IsKind(err, apperrors.KindHistoryExpired))
}

func TestConvertMessage(t *testing.T) {
	msg := &gmailapi.Message{
		Id:           "msg-1",
		ThreadId:     "thread-1",
		LabelIds:     []string{"INBOX", "IMPORTANT"},
		HistoryId:    12345,
		InternalDate: 1709290800000,
		Snippet:      "Invoice #42 attached",
		SizeEstimate: 2048,
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "Subject", Value: "Invoice #42"},
				{Name: "From", Value: "billing@acme.com"},
			},
			Body: &gmailapi.MessagePartBody{Data: "aGVsbG8"},
		},
	}

	raw := convertMessage(msg)
	require.NotNil(t, raw)
	assert.Equal(t, "msg-1", raw.ID)
	assert.Equal(t, "thread-1", raw.ThreadID)
	assert.Equal(t, []string{"INBOX", "IMPORTANT"}, raw.LabelIDs)
	assert.Equal(t, uint64(12345), raw.HistoryID)
	assert.Equal(t, int64(1709290800000), raw.InternalDate)
	assert.Equal(t, "Invoice #42 attached", raw.Snippet)
	assert.Equal(t, int64(2048), raw.SizeEstimate)

	require.NotNil(t, raw.Payload)
	assert.Equal(t, "text/plain", raw.Payload.MimeType)
	assert.Equal(t, "Invoice #42", raw.Payload.Headers["Subject"])
	assert.Equal(t, "billing@acme.com", raw.Payload.Headers["From"])
	assert.Equal(t, "aGVsbG8", raw.Payload.Data)
}

func TestConvertMessage_Nil(t *testing.T) {
	assert.Nil(t, convertMessage(nil))
}

func TestConvertPart_NestedMultipart(t *testing.T) {
	part := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailapi.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmailapi.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmailapi.MessagePartBody{Data: "cGxhaW4"},
					},
					{
						MimeType: "text/html",
						Body:     &gmailapi.MessagePartBody{Data: "aHRtbA"},
					},
				},
			},
			{
				MimeType: "application/pdf",
				Filename: "invoice.pdf",
				Body:     &gmailapi.MessagePartBody{AttachmentId: "att-1"},
			},
		},
	}

	converted := convertPart(part)
	require.NotNil(t, converted)
	assert.Equal(t, "multipart/mixed", converted.MimeType)
	require.Len(t, converted.Parts, 2)

	alternative := converted.Parts[0]
	assert.Equal(t, "multipart/alternative", alternative.MimeType)
	require.Len(t, alternative.Parts, 2)
	assert.Equal(t, "text/plain", alternative.Parts[0].MimeType)
	assert.Equal(t, "cGxhaW4", alternative.Parts[0].Data)
	assert.Equal(t, "text/html", alternative.Parts[1].MimeType)

	attachment := converted.Parts[1]
	assert.Equal(t, "application/pdf", attachment.MimeType)
	assert.Equal(t, "invoice.pdf", attachment.Filename)
	assert.Empty(t, attachment.Data)
}

func TestConvertPart_Nil(t *testing.T) {
	assert.Nil(t, convertPart(nil))
}

func TestConvertPart_EmptyHeaders(t *testing.T) {
	converted := convertPart(&gmailapi.MessagePart{MimeType: "text/plain"})
	require.NotNil(t, converted)
	assert.Nil(t, converted.Headers)
}
