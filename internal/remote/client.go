// Package remote talks to the finished API: the signed-in user's items table
// and the auth endpoints behind it.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finished/api/internal/search"
	"finished/api/internal/store"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s: %s", e.Code, e.Message)
}

// IsUnauthorized reports whether the server rejected the credentials.
func (e *APIError) IsUnauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Client calls the unauthenticated endpoints. Table adds a bearer token.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// TokenSource hands out a valid access token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code    string            `json:"code"`
			Error   string            `json:"error"`
			Details map[string]string `json:"details"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = payload.Code, payload.Error, payload.Details
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Tokens is the payload of sign-in and refresh.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ExpiresAt    int64  `json:"expiresAt"`
}

func (c *Client) SignUp(ctx context.Context, email, password, displayName string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}, nil)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	var tokens Tokens
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    email,
		"password": password,
	}, &tokens)
	return tokens, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var tokens Tokens
	err := c.do(ctx, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": refreshToken}, &tokens)
	return tokens, err
}

func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/api/session/logout", accessToken, map[string]string{"refreshToken": refreshToken}, nil)
}

// Table returns the items table of whoever tokens authenticates.
func (c *Client) Table(tokens TokenSource) *Table {
	return &Table{client: c, tokens: tokens}
}

// Table implements finished.RemoteTable over /api/items.
type Table struct {
	client *Client
	tokens TokenSource
}

func (t *Table) call(ctx context.Context, method, path string, body, out any) error {
	token, err := t.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	return t.client.do(ctx, method, path, token, body, out)
}

func (t *Table) ListItems(ctx context.Context) ([]store.Item, error) {
	var payload struct {
		Items []store.Item `json:"items"`
	}
	if err := t.call(ctx, http.MethodGet, "/api/items", nil, &payload); err != nil {
		return nil, err
	}
	if payload.Items == nil {
		payload.Items = []store.Item{}
	}
	return payload.Items, nil
}

func (t *Table) InsertItem(ctx context.Context, item store.Item) (store.Item, error) {
	var created store.Item
	err := t.call(ctx, http.MethodPost, "/api/items", map[string]any{
		"title":       item.Title,
		"description": item.Description,
		"type":        item.Type,
		"order":       item.Order,
	}, &created)
	return created, err
}

func (t *Table) UpsertItems(ctx context.Context, items []store.Item) error {
	batch := make([]map[string]any, 0, len(items))
	for _, item := range items {
		batch = append(batch, map[string]any{
			"id":          item.ID,
			"title":       item.Title,
			"description": item.Description,
			"type":        item.Type,
			"order":       item.Order,
		})
	}
	return t.call(ctx, http.MethodPut, "/api/items", map[string]any{"items": batch}, nil)
}

func (t *Table) UpdateTitle(ctx context.Context, id, title string) (store.Item, error) {
	var updated store.Item
	err := t.call(ctx, http.MethodPatch, "/api/items/"+url.PathEscape(id), map[string]string{"title": title}, &updated)
	return updated, err
}

func (t *Table) UpdateOrders(ctx context.Context, orders []store.ItemOrder) error {
	return t.call(ctx, http.MethodPut, "/api/items/order", map[string]any{"orders": orders}, nil)
}

func (t *Table) DeleteItem(ctx context.Context, id string) error {
	return t.call(ctx, http.MethodDelete, "/api/items/"+url.PathEscape(id), nil, nil)
}

// Search runs the server-side search over the signed-in user's items.
func (t *Table) Search(ctx context.Context, text string, itemType store.ItemType, limit int) (search.Response, error) {
	q := url.Values{}
	q.Set("q", text)
	if itemType != "" {
		q.Set("type", string(itemType))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp search.Response
	err := t.call(ctx, http.MethodGet, "/api/search?"+q.Encode(), nil, &resp)
	return resp, err
}
