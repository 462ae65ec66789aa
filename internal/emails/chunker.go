package emails

import (
	"fmt"
	"unicode"

	"mailchat/internal/models"
)

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 150
)

// SplitText cuts text into rune windows of at most size runes, carrying
// overlap runes between consecutive chunks. Cuts prefer a paragraph break,
// then a sentence end, then any whitespace near the window end, so chunks
// follow the text's own structure where it has one. The split is purely a
// function of its inputs: the same text always yields the same chunks.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := findCut(runes, start, end, size)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return chunks
}

// findCut picks where to end the window [start, end). Paragraph breaks win
// within the last quarter of the window, sentence ends within the last
// fifth, plain whitespace within the last tenth; otherwise the window is
// cut hard at end.
func findCut(runes []rune, start, end, size int) int {
	for i := end; i > end-size/4 && i > start+1; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > end-size/5 && i > start+1; i-- {
		if isSentenceEnd(runes[i-2]) && unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	for i := end; i > end-size/10 && i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// BuildChunks flattens a normalized email into indexable chunks. Chunk ids
// derive from the message id and ordinal, so re-syncing an unchanged message
// produces identical ids and repository upserts replace cleanly. Emails with
// an empty body but a subject still yield one chunk carrying the subject.
func BuildChunks(record *models.EmailRecord, size, overlap int) []models.Chunk {
	pieces := SplitText(record.Body, size, overlap)
	if len(pieces) == 0 {
		if record.Subject == "" {
			return nil
		}
		pieces = []string{record.Subject}
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, models.Chunk{
			ID:        ChunkID(record.MessageID, i),
			MessageID: record.MessageID,
			ThreadID:  record.ThreadID,
			Ordinal:   i,
			Text:      piece,
			Subject:   record.Subject,
			From:      record.From,
			To:        record.To,
			Date:      record.Date.Unix(),
			Labels:    append([]string(nil), record.Labels...),
		})
	}

	return chunks
}

// ChunkID builds the stable id for one chunk of a message
func ChunkID(messageID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", messageID, ordinal)
}
