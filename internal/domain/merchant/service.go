package merchant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bankledger/internal/domain/transaction"
)

// Service resolves merchants and memoizes results for the life of the
// process. Safe for concurrent use.
type Service struct {
	repo  Repository
	mu    sync.RWMutex
	cache map[string]*Info
}

// NewService creates a new merchant service
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		cache: make(map[string]*Info),
	}
}

// NormalizeName builds the lookup key for a counterparty name.
func NormalizeName(externalName string) string {
	return strings.ToLower(transaction.SanitizeDisplayName(externalName))
}

// Resolve returns the merchant for a raw counterparty name.
func (s *Service) Resolve(ctx context.Context, externalName string, categoryID *string) (*Info, error) {
	key := NormalizeName(externalName)
	if key == "" {
		return nil, ErrEmptyName
	}

	s.mu.RLock()
	info, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return info, nil
	}

	info, err := s.repo.FindOrCreate(ctx, key, transaction.SanitizeDisplayName(externalName), categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve merchant %q: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = info
	s.mu.Unlock()

	return info, nil
}
