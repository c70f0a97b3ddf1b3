package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TokenEnvVar is the environment variable consulted before credentials.toml.
const TokenEnvVar = "CHATSTREAM_TOKEN"

// ErrNoToken is returned by token sources that have nothing to offer.
var ErrNoToken = errors.New("no gateway token configured")

// TokenSource yields the gateway auth token. It is consulted before every
// stream open and send, so rotated tokens take effect on the next turn.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// EnvToken reads the token from an environment variable on every call.
type EnvToken string

func (e EnvToken) Token(context.Context) (string, error) {
	token := os.Getenv(string(e))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Chain tries each source in order and returns the first token found.
func Chain(sources ...TokenSource) TokenSource {
	return chain(sources)
}

type chain []TokenSource

func (c chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		token, err := src.Token(ctx)
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// FileTokenSource serves the token stored for one gateway in a
// credentials.toml file and reloads it whenever the file changes.
type FileTokenSource struct {
	path    string
	gateway string
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
	err   error

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileTokenSource loads the token for gateway from the credentials file
// managed by mgr and starts watching the file for changes. Close stops the
// watcher.
func NewFileTokenSource(mgr *Manager, gateway string, logger *slog.Logger) (*FileTokenSource, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating credentials watcher: %w", err)
	}

	// Watch the directory so editors that replace the file are seen too.
	if err := watcher.Add(filepath.Dir(mgr.GetTarget())); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching credentials dir: %w", err)
	}

	s := &FileTokenSource{
		path:    mgr.GetTarget(),
		gateway: NormalizeGateway(gateway),
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	s.reload()

	go s.watch()

	return s, nil
}

// Token returns the most recently loaded token.
func (s *FileTokenSource) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return "", s.err
	}
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// Close stops watching the credentials file.
func (s *FileTokenSource) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}

func (s *FileTokenSource) watch() {
	defer close(s.done)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("credentials watcher error", "error", err)
		}
	}
}

func (s *FileTokenSource) reload() {
	token, err := s.read()

	s.mu.Lock()
	s.token, s.err = token, err
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to reload gateway token", "path", s.path, "error", err)
		return
	}
	s.logger.Debug("gateway token loaded", "gateway", s.gateway, "present", token != "")
}

func (s *FileTokenSource) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading credentials: %w", err)
	}

	creds, err := parseCredentials(data)
	if err != nil {
		return "", err
	}
	return creds.Gateways[s.gateway].Token, nil
}
