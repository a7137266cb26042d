package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"finished/api/internal/auth"
	"finished/api/internal/authpw"
	"finished/api/internal/config"
	"finished/api/internal/search"
	"finished/api/internal/store"
	"finished/api/internal/util"
	"finished/api/internal/validation"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// CreateItemInput is the body of POST /api/items. The server assigns the id,
// the timestamps and, when absent, the order.
type CreateItemInput struct {
	Title       string `json:"title" validate:"notblank,max=90"`
	Description string `json:"description" validate:"max=2000"`
	Type        string `json:"type" validate:"required,oneof=movies games books"`
	Order       *int   `json:"order,omitempty" validate:"omitempty,gte=0"`
}

// UpsertItemInput is one element of PUT /api/items. Ids are kept, so a repeated
// upload overwrites instead of duplicating.
type UpsertItemInput struct {
	ID          string `json:"id" validate:"required,max=128"`
	Title       string `json:"title" validate:"notblank,max=90"`
	Description string `json:"description" validate:"max=2000"`
	Type        string `json:"type" validate:"required,oneof=movies games books"`
	Order       *int   `json:"order,omitempty" validate:"omitempty,gte=0"`
}

type UpsertItemsInput struct {
	Items []UpsertItemInput `json:"items" validate:"required,dive"`
}

type UpdateTitleInput struct {
	Title string `json:"title" validate:"notblank,max=90"`
}

type ReorderInput struct {
	Orders []OrderInput `json:"orders" validate:"required,dive"`
}

type OrderInput struct {
	ID    string `json:"id" validate:"required"`
	Order int    `json:"order" validate:"gte=0"`
}

type dataStore interface {
	Ping(context.Context) error
	ListItems(context.Context, string) ([]store.Item, error)
	InsertItem(context.Context, store.Item) (store.Item, error)
	UpsertItems(context.Context, []store.Item) error
	UpdateItemTitle(context.Context, string, string, string) (store.Item, error)
	UpdateItemOrders(context.Context, string, []store.ItemOrder) error
	DeleteItem(context.Context, string, string) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	SearchItems(context.Context, string, string, store.ItemType, int) ([]store.Item, error)
	ListAllItems(context.Context) ([]store.Item, error)
}

// SessionStore keeps refresh tokens and revoked access tokens. The SQL store
// and session.RedisStore both satisfy it.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  SessionStore
	passwords *authpw.Service
	search    *search.Service
	validate  *validation.Validator
	logger    *zap.Logger
}

// New wires the service. sessions and searchSvc may be nil, in which case
// refresh tokens live in the items database and search runs on SQL only.
func New(cfg config.Config, dataStore *store.SQLStore, sessions SessionStore, searchSvc *search.Service, logger *zap.Logger) *Service {
	return newService(cfg, dataStore, sessions, searchSvc, logger)
}

func newService(cfg config.Config, dataStore dataStore, sessions SessionStore, searchSvc *search.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		if ss, ok := dataStore.(SessionStore); ok {
			sessions = ss
		}
	}
	if searchSvc == nil {
		searchSvc = search.NewService(nil, search.NewSQLSearch(dataStore), logger)
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: authpw.NewService(dataStore),
		search:    searchSvc,
		validate:  validation.New(),
		logger:    logger,
	}
}

// Bootstrap pushes every item into the search index once at startup.
func (s *Service) Bootstrap(ctx context.Context) {
	s.search.ReindexAll(ctx)
}

// UsePasswordCost overrides the bcrypt cost of new accounts.
func (s *Service) UsePasswordCost(cost int) {
	s.passwords.WithCost(cost)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Checks pings the items database and, when sessions live elsewhere, the
// session store. A nil entry means the check passed.
func (s *Service) Checks(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.Ping(ctx)}
	if s.sessions != nil && any(s.sessions) != any(s.store) {
		if pinger, ok := s.sessions.(interface{ Ping(context.Context) error }); ok {
			checks["sessions"] = pinger.Ping(ctx)
		}
	}
	return checks
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (store.User, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	switch {
	case errors.Is(err, authpw.ErrEmailTaken):
		return store.User{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword):
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case err != nil:
		return store.User{}, err
	}
	return user, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	switch {
	case errors.Is(err, authpw.ErrInvalidCredentials), errors.Is(err, authpw.ErrMissingFields):
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	case err != nil:
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh token", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) ListItems(ctx context.Context, session Session) ([]store.Item, error) {
	return s.store.ListItems(ctx, session.UserID)
}

func (s *Service) CreateItem(ctx context.Context, session Session, input CreateItemInput) (store.Item, error) {
	input.Title = store.NormalizeTitle(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validate.Validate(input); err != nil {
		return store.Item{}, validationError(err)
	}

	item, err := s.store.InsertItem(ctx, store.Item{
		Title:       input.Title,
		Description: input.Description,
		Type:        store.ItemType(input.Type),
		Order:       input.Order,
		UserID:      session.UserID,
	})
	if err != nil {
		return store.Item{}, err
	}
	s.search.IndexItems(item)
	return item, nil
}

// UpsertItems validates the whole batch before writing any of it.
func (s *Service) UpsertItems(ctx context.Context, session Session, input UpsertItemsInput) (int, error) {
	for i := range input.Items {
		input.Items[i].Title = store.NormalizeTitle(input.Items[i].Title)
		input.Items[i].Description = strings.TrimSpace(input.Items[i].Description)
	}
	if err := s.validate.Validate(input); err != nil {
		return 0, validationError(err)
	}

	seen := make(map[string]struct{}, len(input.Items))
	items := make([]store.Item, 0, len(input.Items))
	for _, in := range input.Items {
		if _, dup := seen[in.ID]; dup {
			return 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Duplicate item id", map[string]string{"id": in.ID})
		}
		seen[in.ID] = struct{}{}
		items = append(items, store.Item{
			ID:          in.ID,
			Title:       in.Title,
			Description: in.Description,
			Type:        store.ItemType(in.Type),
			Order:       in.Order,
			UserID:      session.UserID,
		})
	}

	if err := s.store.UpsertItems(ctx, items); err != nil {
		return 0, err
	}
	s.search.IndexItems(items...)
	return len(items), nil
}

func (s *Service) UpdateTitle(ctx context.Context, session Session, id string, input UpdateTitleInput) (store.Item, error) {
	input.Title = store.NormalizeTitle(input.Title)
	if err := s.validate.Validate(input); err != nil {
		return store.Item{}, validationError(err)
	}
	item, err := s.store.UpdateItemTitle(ctx, session.UserID, id, input.Title)
	if err != nil {
		return store.Item{}, err
	}
	s.search.IndexItems(item)
	return item, nil
}

// ReorderItems rewrites every listed rank in one transaction. Last write wins
// against concurrent sessions.
func (s *Service) ReorderItems(ctx context.Context, session Session, input ReorderInput) error {
	if err := s.validate.Validate(input); err != nil {
		return validationError(err)
	}
	orders := make([]store.ItemOrder, 0, len(input.Orders))
	for _, o := range input.Orders {
		orders = append(orders, store.ItemOrder{ID: o.ID, Order: o.Order})
	}
	if err := s.store.UpdateItemOrders(ctx, session.UserID, orders); err != nil {
		return fmt.Errorf("reorder items: %w", err)
	}
	return nil
}

func (s *Service) DeleteItem(ctx context.Context, session Session, id string) error {
	if err := s.store.DeleteItem(ctx, session.UserID, id); err != nil {
		return err
	}
	s.search.DeleteItem(id)
	return nil
}

func (s *Service) Search(ctx context.Context, session Session, text, itemType string, limit int) (search.Response, error) {
	q := search.Query{OwnerID: session.UserID, Text: strings.TrimSpace(text), Limit: limit}
	if itemType != "" {
		parsed, err := store.ParseItemType(itemType)
		if err != nil {
			return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown item type", map[string]string{"type": itemType})
		}
		q.Type = parsed
	}
	if q.Text == "" {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q), nil
}
