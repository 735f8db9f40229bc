// tokenstore/tokenstore.go
// Package tokenstore holds the bearer token of a client and mirrors every change into
// durable cells (a cookie, a database row) owned by other components.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-api-auth-client/logger"
	"go.uber.org/zap"
)

// Mirror is a durable cell the token is written through to.
type Mirror interface {
	// Load returns the stored token, or "" when none is stored.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
}

// Store is a mutable token cell. It does not validate tokens.
type Store struct {
	mu      sync.RWMutex
	token   string
	mirrors []Mirror
	log     logger.Logger
}

// New returns a Store holding token and writing through to mirrors.
func New(token string, log logger.Logger, mirrors ...Mirror) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{token: token, mirrors: mirrors, log: log}
}

// Get returns the current token, or "" when none was ever set.
func (s *Store) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the token in memory and then saves it to every mirror.
// The in-memory value is updated even when a mirror fails; mirror errors are returned joined.
func (s *Store) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	mirrors := s.mirrors
	s.mu.Unlock()

	var errs []error
	for _, m := range mirrors {
		if err := m.Save(ctx, token); err != nil {
			s.log.Warn("Failed to persist access token", zap.String("mirror", fmt.Sprintf("%T", m)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Prime loads the token from the first mirror that holds one. It is a no-op when the
// store already has a token.
func (s *Store) Prime(ctx context.Context) error {
	if s.Get() != "" {
		return nil
	}

	var errs []error
	for _, m := range s.mirrors {
		token, err := m.Load(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if token != "" {
			s.mu.Lock()
			s.token = token
			s.mu.Unlock()
			s.log.Debug("Access token primed from mirror", zap.String("mirror", fmt.Sprintf("%T", m)))
			return nil
		}
	}
	return errors.Join(errs...)
}

// AddMirror registers an additional mirror.
func (s *Store) AddMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors = append(s.mirrors, m)
}
