// Package gmail wraps the Gmail API behind the provider operations the
// sync engine needs: a paged full walk, incremental history reads, and
// single-message fetches that return the raw payload tree.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailchat/internal/apperrors"
	"mailchat/internal/config"
	"mailchat/internal/models"
)

// Client is a read-only Gmail API client for one mailbox
type Client struct {
	svc      *gmail.Service
	userID   string
	pageSize int64
	query    string
}

// NewClient builds a Gmail client from the configured OAuth refresh token.
// The token source refreshes access tokens transparently.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.GoogleRefreshToken == "" {
		return nil, fmt.Errorf("google OAuth credentials not configured (GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REFRESH_TOKEN)")
	}

	token := &oauth2.Token{
		RefreshToken: cfg.GoogleRefreshToken,
		TokenType:    "Bearer",
		// Expired on purpose so the first call exchanges the refresh token
		Expiry: time.Now().Add(-time.Minute),
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, token))

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	pageSize := int64(cfg.SyncPageSize)
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Client{
		svc:      svc,
		userID:   "me",
		pageSize: pageSize,
		query:    cfg.SyncQuery,
	}, nil
}

// Profile returns the mailbox address and its current history id. The
// engine snapshots the history id before a full walk so changes that land
// mid-walk are picked up by the next incremental run.
func (c *Client) Profile(ctx context.Context) (*models.MailboxProfile, error) {
	resp, err := c.svc.Users.GetProfile(c.userID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox profile: %w", err)
	}

	return &models.MailboxProfile{
		Email:         resp.EmailAddress,
		HistoryID:     resp.HistoryId,
		MessagesTotal: resp.MessagesTotal,
	}, nil
}

// ListPage returns one page of message ids for a full mailbox walk. An
// empty query falls back to the configured search query.
func (c *Client) ListPage(ctx context.Context, query, pageToken string) (*models.MessagePage, error) {
	if query == "" {
		query = c.query
	}

	call := c.svc.Users.Messages.List(c.userID).
		Context(ctx).
		MaxResults(c.pageSize).
		IncludeSpamTrash(false)
	if query != "" {
		call = call.Q(query)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &models.MessagePage{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.MessageIDs = append(page.MessageIDs, m.Id)
	}

	return page, nil
}

// ChangedSince returns one page of mailbox changes after the cursor. A
// cursor Gmail no longer accepts comes back as a history-expired error and
// the caller falls back to a full walk.
func (c *Client) ChangedSince(ctx context.Context, cursor, pageToken string) (*models.ChangePage, error) {
	startID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, apperrors.HistoryExpired(cursor)
	}

	call := c.svc.Users.History.List(c.userID).
		Context(ctx).
		StartHistoryId(startID).
		MaxResults(c.pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			// Gmail returns 404 when the start history id is older than
			// the retention window
			return nil, apperrors.HistoryExpired(cursor)
		}
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	page := &models.ChangePage{
		NextPageToken: pageTokenOf(resp),
		NewCursor:     cursor,
	}

	latest := startID
	added := make(map[string]struct{})
	deleted := make(map[string]struct{})

	for _, record := range resp.History {
		if record.Id > latest {
			latest = record.Id
		}
		for _, msg := range record.MessagesAdded {
			if msg.Message == nil {
				continue
			}
			added[msg.Message.Id] = struct{}{}
		}
		for _, msg := range record.MessagesDeleted {
			if msg.Message == nil {
				continue
			}
			deleted[msg.Message.Id] = struct{}{}
		}
	}

	for id := range added {
		// A message added and deleted inside the same window never needs
		// fetching
		if _, gone := deleted[id]; gone {
			continue
		}
		page.AddedIDs = append(page.AddedIDs, id)
	}
	for id := range deleted {
		page.DeletedIDs = append(page.DeletedIDs, id)
	}

	if latest > startID {
		page.NewCursor = strconv.FormatUint(latest, 10)
	}
	// On the final page the mailbox tip is the most precise cursor
	if page.NextPageToken == "" && resp.HistoryId > latest {
		page.NewCursor = strconv.FormatUint(resp.HistoryId, 10)
	}

	return page, nil
}

// GetMessage fetches one message with its full payload tree
func (c *Client) GetMessage(ctx context.Context, id string) (*models.RawMessage, error) {
	msg, err := c.svc.Users.Messages.Get(c.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return convertMessage(msg), nil
}

func pageTokenOf(resp *gmail.ListHistoryResponse) string {
	if resp == nil {
		return ""
	}
	return resp.NextPageToken
}

// convertMessage maps a Gmail message onto the provider-neutral raw shape
func convertMessage(msg *gmail.Message) *models.RawMessage {
	if msg == nil {
		return nil
	}

	return &models.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		HistoryID:    msg.HistoryId,
		InternalDate: msg.InternalDate,
		Snippet:      msg.Snippet,
		SizeEstimate: msg.SizeEstimate,
		Payload:      convertPart(msg.Payload),
	}
}

func convertPart(part *gmail.MessagePart) *models.MessagePart {
	if part == nil {
		return nil
	}

	converted := &models.MessagePart{
		MimeType: part.MimeType,
		Filename: part.Filename,
	}

	if len(part.Headers) > 0 {
		converted.Headers = make(map[string]string, len(part.Headers))
		for _, header := range part.Headers {
			converted.Headers[header.Name] = header.Value
		}
	}

	if part.Body != nil {
		converted.Data = part.Body.Data
	}

	for _, child := range part.Parts {
		if nested := convertPart(child); nested != nil {
			converted.Parts = append(converted.Parts, *nested)
		}
	}

	return converted
}
