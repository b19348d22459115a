// Package entity implements the remote entity-fetch client of the mail store.
package entity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
	"indexer_server/pkg/apperr"
)

var _ out.EntityFetcher = (*Client)(nil)

// =============================================================================
// Entity Client
// =============================================================================

// Client implements out.EntityFetcher against the mail store's REST surface.
// All calls pass through a circuit breaker; sustained store failures fail
// fast instead of piling up range loads.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker
	log       zerolog.Logger
}

// Config holds entity client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string // optional bearer token for the store
	Logger    zerolog.Logger
}

// NewClient creates a new entity-fetch client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	log := cfg.Logger.With().Str("component", "entity_client").Logger()

	cbSettings := gobreaker.Settings{
		Name:        "entity-store",
		MaxRequests: 3,                // requests allowed through while half-open
		Interval:    60 * time.Second, // counter reset interval while closed
		Timeout:     30 * time.Second, // open duration before half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// NotFound / NotAuthorized are store answers, not store failures.
			return err == nil || apperr.IsNotFound(err) || apperr.IsNotAuthorized(err)
		},
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: timeout},
		cb:        gobreaker.NewCircuitBreaker(cbSettings),
		log:       log,
	}
}

// =============================================================================
// out.EntityFetcher
// =============================================================================

func (c *Client) LoadMailboxGroupRoot(ctx context.Context, groupID string) (*domain.MailboxGroupRoot, error) {
	var root domain.MailboxGroupRoot
	if err := c.get(ctx, "/rest/mailboxgrouproot/"+url.PathEscape(groupID), nil, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

func (c *Client) LoadMailbox(ctx context.Context, mailboxID string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := c.get(ctx, "/rest/mailbox/"+url.PathEscape(mailboxID), nil, &mailbox); err != nil {
		return nil, err
	}
	return &mailbox, nil
}

func (c *Client) LoadFolders(ctx context.Context, folderListID domain.ListID) ([]*domain.MailFolder, error) {
	var folders []*domain.MailFolder
	if err := c.get(ctx, "/rest/mailfolder/"+url.PathEscape(folderListID), nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

func (c *Client) LoadMail(ctx context.Context, id domain.IDTuple) (*domain.Mail, error) {
	var mail domain.Mail
	path := fmt.Sprintf("/rest/mail/%s/%d", url.PathEscape(id.ListID), id.ElementID)
	if err := c.get(ctx, path, nil, &mail); err != nil {
		return nil, err
	}
	return &mail, nil
}

func (c *Client) LoadMailBody(ctx context.Context, bodyID string) (*domain.MailBody, error) {
	var body domain.MailBody
	if err := c.get(ctx, "/rest/mailbody/"+url.PathEscape(bodyID), nil, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *Client) LoadFile(ctx context.Context, ref domain.IDTuple) (*domain.File, error) {
	var file domain.File
	path := fmt.Sprintf("/rest/file/%s/%d", url.PathEscape(ref.ListID), ref.ElementID)
	if err := c.get(ctx, path, nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) LoadMailRange(ctx context.Context, listID domain.ListID, startID domain.ElementID, count int, reverse bool) ([]*domain.Mail, error) {
	query := url.Values{
		"start":   {strconv.FormatInt(startID, 10)},
		"count":   {strconv.Itoa(count)},
		"reverse": {strconv.FormatBool(reverse)},
	}

	var mails []*domain.Mail
	if err := c.get(ctx, "/rest/mail/"+url.PathEscape(listID), query, &mails); err != nil {
		return nil, err
	}
	return mails, nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	result, err := c.cb.Execute(func() (any, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, apperr.ExternalError("entity-store", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			return io.ReadAll(resp.Body)
		case http.StatusNotFound:
			return nil, apperr.NotFound(path)
		case http.StatusForbidden, http.StatusUnauthorized:
			return nil, apperr.NotAuthorized(path)
		default:
			c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("unexpected store response")
			return nil, apperr.ExternalError("entity-store",
				fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path))
		}
	})
	if err != nil {
		return err
	}

	raw := result.([]byte)
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// IsAvailable reports whether the breaker currently lets requests through.
func (c *Client) IsAvailable() bool {
	return c.cb.State() != gobreaker.StateOpen
}
