// Package chain turns a question about the mailbox into a grounded
// answer: embed the question, retrieve similar chunks, guard numeric
// identifiers, prompt the model with numbered excerpts, and map the
// bracketed markers in the reply back to citations.
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"mailchat/internal/apperrors"
	"mailchat/internal/cache"
	"mailchat/internal/config"
	"mailchat/internal/database"
	"mailchat/internal/models"
	"mailchat/internal/retry"
	"mailchat/internal/utils"
	"mailchat/internal/vecstore"
)

const systemPrompt = `You are an assistant that answers questions about the user's own mailbox.

Rules:
- Answer ONLY from the email excerpts below.
- Mark every fact with the bracketed number of the excerpt it came from, e.g. [1] or [2][3].
- If the excerpts do not contain the answer, say you could not find it in the emails. Never guess.
- Keep answers short and specific.`

const noResultsAnswer = "I couldn't find any emails matching your question."

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// LLM is the model surface the chain needs, satisfied by openai.Client.
type LLM interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error)
	GetGPTModel() string
	GetEmbeddingModel() string
}

// Tracker records billable usage, satisfied by analytics.Service.
// Tracking never affects the answer.
type Tracker interface {
	TrackQuestion(ctx context.Context, cited bool, tokens int, model string) error
	TrackQueryEmbedding(ctx context.Context, model string) error
}

// Chain answers mailbox questions over the vector index.
type Chain struct {
	llm           LLM
	repo          vecstore.Repository
	conversations *database.ConversationService
	tracker       Tracker
	memory        *Memory
	queryCache    *cache.Cache
	policy        retry.Policy
	k             int
	cacheTTL      time.Duration
	maxTokens     int
	temperature   float32
}

// NewChain wires the retrieval chain. conversations may be nil; turns
// then live only in process memory.
func NewChain(cfg *config.Config, llm LLM, repo vecstore.Repository, conversations *database.ConversationService) *Chain {
	return &Chain{
		llm:           llm,
		repo:          repo,
		conversations: conversations,
		memory:        NewMemory(cfg.MemoryMaxTurns, cfg.MemoryMaxTokens),
		queryCache:    cache.New(),
		policy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		k:           cfg.RetrievalK,
		cacheTTL:    time.Duration(cfg.QueryCacheTTL) * time.Minute,
		maxTokens:   cfg.ChatMaxTokens,
		temperature: float32(cfg.ChatTemperature),
	}
}

// Ask answers one question. Every factual claim in the answer is backed
// by the returned citations; when retrieval finds nothing the answer
// says so instead of calling the model.
func (c *Chain) Ask(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, apperrors.InvalidRequest("question must not be empty")
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	filter, err := buildFilter(req)
	if err != nil {
		return nil, err
	}

	k := req.K
	if k <= 0 {
		k = c.k
	}

	fmt.Printf("[CHAIN] Question for session %s (k=%d)\n", sessionID, k)

	vector, err := c.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	err = c.policy.Do(ctx, "query vector index", func() error {
		var qerr error
		results, qerr = c.repo.Query(ctx, vector, k, filter)
		return qerr
	})
	if err != nil {
		return nil, err
	}

	candidates := guardDigitTokens(question, results)
	history := c.recallHistory(ctx, sessionID)

	if len(candidates) == 0 {
		c.remember(ctx, sessionID, question, noResultsAnswer, nil)
		c.trackQuestion(ctx, false, 0)
		return &models.AskResponse{
			Answer:    noResultsAnswer,
			SessionID: sessionID,
			Model:     c.llm.GetGPTModel(),
		}, nil
	}

	messages := buildMessages(question, candidates, history)

	var resp *openai.ChatCompletionResponse
	err = c.policy.Do(ctx, "chat completion", func() error {
		var cerr error
		resp, cerr = c.llm.CreateChatCompletion(ctx, messages, c.maxTokens, c.temperature)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	answer := resp.Choices[0].Message.Content
	citations := resolveCitations(answer, candidates)
	c.remember(ctx, sessionID, question, answer, citations)
	c.trackQuestion(ctx, len(citations) > 0, resp.Usage.TotalTokens)

	fmt.Printf("[CHAIN] Answered session %s with %d citations from %d candidates\n",
		sessionID, len(citations), len(candidates))

	return &models.AskResponse{
		Answer:    answer,
		Citations: citations,
		SessionID: sessionID,
		Model:     c.llm.GetGPTModel(),
		Retrieved: len(candidates),
	}, nil
}

// SetTracker enables usage tracking
func (c *Chain) SetTracker(tracker Tracker) {
	c.tracker = tracker
}

// ClearSession drops a session's in-process turns. The persisted
// transcript is untouched.
func (c *Chain) ClearSession(sessionID string) {
	c.memory.Forget(sessionID)
}

func (c *Chain) trackQuestion(ctx context.Context, cited bool, tokens int) {
	if c.tracker == nil {
		return
	}
	if err := c.tracker.TrackQuestion(ctx, cited, tokens, c.llm.GetGPTModel()); err != nil {
		fmt.Printf("[CHAIN] Failed to track question: %v\n", err)
	}
}

// embedQuestion returns the question vector, cached so repeated or
// rephrased-identical questions skip the embedding call.
func (c *Chain) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	key := embedCacheKey(question)
	if cached, ok := c.queryCache.Get(key); ok {
		if vector, ok := cached.([]float32); ok {
			return vector, nil
		}
	}

	var vectors [][]float32
	err := c.policy.Do(ctx, "embed question", func() error {
		var eerr error
		vectors, eerr = c.llm.CreateEmbeddings(ctx, []string{question})
		return eerr
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 question embedding, got %d", len(vectors))
	}

	c.queryCache.Set(key, vectors[0], c.cacheTTL)

	if c.tracker != nil {
		if err := c.tracker.TrackQueryEmbedding(ctx, c.llm.GetEmbeddingModel()); err != nil {
			fmt.Printf("[CHAIN] Failed to track query embedding: %v\n", err)
		}
	}

	return vectors[0], nil
}

func embedCacheKey(question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return "q:" + hex.EncodeToString(sum[:])
}

// recallHistory returns the session's turns, restoring them from the
// conversation store when process memory is empty after a restart.
func (c *Chain) recallHistory(ctx context.Context, sessionID string) []models.ConversationTurn {
	history := c.memory.Recall(sessionID)
	if len(history) > 0 || c.conversations == nil {
		return history
	}

	stored, err := c.conversations.GetRecentMessages(ctx, sessionID, c.memory.maxTurns)
	if err != nil {
		fmt.Printf("[CHAIN] Failed to restore session %s: %v\n", sessionID, err)
		return nil
	}
	if len(stored) == 0 {
		return nil
	}

	turns := make([]models.ConversationTurn, 0, len(stored))
	for _, msg := range stored {
		turns = append(turns, models.ConversationTurn{Role: msg.Role, Text: msg.Message})
	}
	c.memory.Seed(sessionID, turns)
	return c.memory.Recall(sessionID)
}

// remember records the exchange in memory and, best effort, in the
// conversation store. Persistence failures never fail the answer.
func (c *Chain) remember(ctx context.Context, sessionID, question, answer string, citations []models.Citation) {
	var cited []string
	for _, citation := range citations {
		cited = append(cited, citation.MessageID)
	}
	c.memory.Append(sessionID, models.ConversationTurn{Role: "user", Text: question})
	c.memory.Append(sessionID, models.ConversationTurn{Role: "assistant", Text: answer, CitedMessageIDs: cited})

	if c.conversations == nil {
		return
	}
	if err := c.conversations.SaveSession(ctx, sessionID); err != nil {
		fmt.Printf("[CHAIN] Failed to save session %s: %v\n", sessionID, err)
		return
	}
	if err := c.conversations.SaveMessage(ctx, sessionID, "user", question); err != nil {
		fmt.Printf("[CHAIN] Failed to save user turn for %s: %v\n", sessionID, err)
	}
	if err := c.conversations.SaveMessage(ctx, sessionID, "assistant", answer); err != nil {
		fmt.Printf("[CHAIN] Failed to save assistant turn for %s: %v\n", sessionID, err)
	}
}

// buildFilter converts request filters into a repository filter. Dates
// accept YYYY-MM-DD or RFC 3339; a date-only "before" covers its whole
// day.
func buildFilter(req *models.AskRequest) (*vecstore.Filter, error) {
	filter := &vecstore.Filter{
		From:   strings.TrimSpace(req.From),
		Labels: req.Labels,
	}
	if req.After != "" {
		t, _, err := parseDate(req.After)
		if err != nil {
			return nil, apperrors.InvalidRequest(fmt.Sprintf("invalid after date %q", req.After))
		}
		filter.DateFrom = t.Unix()
	}
	if req.Before != "" {
		t, dateOnly, err := parseDate(req.Before)
		if err != nil {
			return nil, apperrors.InvalidRequest(fmt.Sprintf("invalid before date %q", req.Before))
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Second)
		}
		filter.DateTo = t.Unix()
	}
	if filter.IsZero() {
		return nil, nil
	}
	return filter, nil
}

func parseDate(value string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	return t, false, err
}

// guardDigitTokens keeps candidates that contain every digit-bearing
// token of the question, so "invoice #42" cannot be answered from
// invoice #57. When no candidate carries them all, similarity order
// stands.
func guardDigitTokens(question string, results []models.SearchResult) []models.SearchResult {
	required := utils.DigitTokens(utils.ExtractMeaningfulTokens(question))
	if len(required) == 0 {
		return results
	}

	var kept []models.SearchResult
	for _, result := range results {
		tokens := utils.BuildTokenSet(result.Chunk.Subject, result.Chunk.Text)
		if ok, _ := utils.ContainsAllTokens(tokens, required); ok {
			kept = append(kept, result)
		}
	}
	if len(kept) == 0 {
		return results
	}
	return kept
}

// buildMessages assembles the prompt: one system message carrying the
// rules, the numbered excerpts and the language instruction, then the
// session history, then the question.
func buildMessages(question string, candidates []models.SearchResult, history []models.ConversationTurn) []openai.ChatCompletionMessage {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nEmail excerpts:\n")
	for i, candidate := range candidates {
		chunk := candidate.Chunk
		sb.WriteString(fmt.Sprintf("\n[%d] Subject: %s | From: %s | Date: %s\n%s\n",
			i+1, chunk.Subject, chunk.From, formatDate(chunk.Date), chunk.Text))
	}

	lang := utils.DetectLanguage(question)
	sb.WriteString("\n")
	sb.WriteString(utils.GetLanguageInstruction(lang))

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: sb.String()},
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if isAssistantRole(turn.Role) {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})
}

func isAssistantRole(role string) bool {
	role = strings.ToLower(role)
	return strings.Contains(role, "assistant") || strings.Contains(role, "bot") || strings.Contains(role, "ai")
}

// resolveCitations maps bracketed markers in the answer back to the
// numbered candidates. Markers outside the candidate range are dropped
// silently; repeated markers for one message cite it once.
func resolveCitations(answer string, candidates []models.SearchResult) []models.Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	seen := make(map[string]bool)
	var citations []models.Citation
	for _, match := range matches {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(candidates) {
			continue
		}
		chunk := candidates[n-1].Chunk
		if seen[chunk.MessageID] {
			continue
		}
		seen[chunk.MessageID] = true
		citations = append(citations, models.Citation{
			MessageID: chunk.MessageID,
			ChunkID:   chunk.ID,
			Subject:   chunk.Subject,
			From:      chunk.From,
			Date:      formatDate(chunk.Date),
			Link:      gmailLink(chunk.MessageID),
		})
	}
	return citations
}

func formatDate(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format("2006-01-02")
}

func gmailLink(messageID string) string {
	return "https://mail.google.com/mail/u/0/#all/" + messageID
}
