package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"finished/api/internal/finished"
)

// ErrSignedOut is returned by AccessToken when no session is stored.
var ErrSignedOut = errors.New("not signed in")

// refreshSkew renews an access token this long before it expires.
const refreshSkew = 30 * time.Second

// Authenticator owns the client session: it signs in and out, refreshes the
// access token and reports identity changes made by other processes.
type Authenticator struct {
	mu      sync.Mutex
	client  *Client
	file    *SessionFile
	current *Session
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuthenticator restores the session stored in file, if any. An unreadable
// file is logged and treated as signed out.
func NewAuthenticator(client *Client, file *SessionFile, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authenticator{client: client, file: file, logger: logger.Named("auth"), now: time.Now}
	session, err := file.Load()
	if err != nil {
		a.logger.Warn("ignoring stored session", zap.Error(err))
	}
	a.current = session
	return a
}

func identityOf(s *Session) finished.Identity {
	if s == nil {
		return finished.Anonymous{}
	}
	return finished.Authenticated{ID: s.UserID, DisplayName: s.UserName}
}

func (a *Authenticator) Current() finished.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return identityOf(a.current)
}

func (a *Authenticator) SignUp(ctx context.Context, email, password, displayName string) (finished.Identity, error) {
	if err := a.client.SignUp(ctx, email, password, displayName); err != nil {
		return finished.Anonymous{}, err
	}
	return a.SignIn(ctx, email, password)
}

func (a *Authenticator) SignIn(ctx context.Context, email, password string) (finished.Identity, error) {
	tokens, err := a.client.SignIn(ctx, email, password)
	if err != nil {
		return finished.Anonymous{}, err
	}
	session := sessionFromTokens(tokens)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.file.Save(session); err != nil {
		return finished.Anonymous{}, err
	}
	a.current = session
	return identityOf(session), nil
}

// SignOut revokes the tokens server-side when possible and always forgets the
// local session.
func (a *Authenticator) SignOut(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		if err := a.client.Logout(ctx, a.current.AccessToken, a.current.RefreshToken); err != nil {
			a.logger.Warn("server logout failed", zap.Error(err))
		}
	}
	a.current = nil
	return a.file.Remove()
}

// AccessToken returns the stored access token, refreshing it first when it is
// about to expire. A rejected refresh signs the client out.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return "", ErrSignedOut
	}
	if a.now().Add(refreshSkew).Before(a.current.ExpiresAt) {
		return a.current.AccessToken, nil
	}

	tokens, err := a.client.Refresh(ctx, a.current.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			a.current = nil
			_ = a.file.Remove()
			return "", ErrSignedOut
		}
		return "", err
	}
	session := sessionFromTokens(tokens)
	if err := a.file.Save(session); err != nil {
		a.logger.Warn("persist refreshed session", zap.Error(err))
	}
	a.current = session
	return session.AccessToken, nil
}

// reload re-reads the session file and reports whether the identity changed.
func (a *Authenticator) reload() (finished.Identity, bool) {
	session, err := a.file.Load()
	if err != nil {
		a.logger.Warn("reload session file", zap.Error(err))
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	before := identityOf(a.current)
	a.current = session
	after := identityOf(session)
	return after, before != after
}

// Watch emits the new identity whenever the session file changes to a
// different user, for example after a sign-in from another terminal. The
// channel closes when ctx is done.
func (a *Authenticator) Watch(ctx context.Context) (<-chan finished.Identity, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(a.file.Path())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	out := make(chan finished.Identity, 1)
	go a.watchLoop(ctx, watcher, out)
	return out, nil
}

func (a *Authenticator) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- finished.Identity) {
	defer close(out)
	defer watcher.Close()

	target := filepath.Clean(a.file.Path())
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			debounce.Reset(50 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.logger.Warn("session watcher", zap.Error(err))
		case <-debounce.C:
			id, changed := a.reload()
			if !changed {
				continue
			}
			select {
			case out <- id:
			case <-ctx.Done():
				return
			}
		}
	}
}
