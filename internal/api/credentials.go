// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier checks login credentials. A wrong password or an
// unknown identifier is (false, nil); errors are reserved for failures of
// the verifier itself.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, password string) (bool, error)
}

// PasswordUpdater stores a new password hash after a successful password
// change. Verifiers that implement it are updated by the password route.
type PasswordUpdater interface {
	SetPasswordHash(ctx context.Context, identifier, hash string) error
}

// MemoryCredentials is an in-process CredentialVerifier keyed by
// identifier, holding bcrypt hashes.
type MemoryCredentials struct {
	mu     sync.RWMutex
	hashes map[string][]byte

	dummyOnce sync.Once
	dummy     []byte
}

// NewMemoryCredentials creates an empty credential set.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{hashes: make(map[string][]byte)}
}

// SetPasswordHash implements PasswordUpdater.
func (c *MemoryCredentials) SetPasswordHash(_ context.Context, identifier, hash string) error {
	if identifier == "" {
		return errors.New("identifier is required")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[identifier] = []byte(hash)
	return nil
}

// Verify implements CredentialVerifier. Unknown identifiers are compared
// against a dummy hash so both outcomes take the same time.
func (c *MemoryCredentials) Verify(_ context.Context, identifier, password string) (bool, error) {
	c.mu.RLock()
	hash, ok := c.hashes[identifier]
	c.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(c.dummyHash(), []byte(password))
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil, nil
}

func (c *MemoryCredentials) dummyHash() []byte {
	c.dummyOnce.Do(func() {
		c.dummy, _ = bcrypt.GenerateFromPassword([]byte("gatekeeper-unknown-identifier"), bcrypt.DefaultCost)
	})
	return c.dummy
}
