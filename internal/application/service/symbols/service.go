package symbols

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"main/internal/domain/interfaces"
	"main/internal/retry"
)

const listenRetryDelay = 5 * time.Second

// Service keeps the cache-resident live symbol set aligned with the stocks
// table: full population at startup, incremental diffs on change
// notifications.
type Service struct {
	directory interfaces.SymbolDirectory
	cache     interfaces.SymbolSetWriter
	logger    *logrus.Entry
}

func NewService(directory interfaces.SymbolDirectory, cache interfaces.SymbolSetWriter, logger *logrus.Logger) *Service {
	return &Service{
		directory: directory,
		cache:     cache,
		logger:    logger.WithField("component", "symbol_sync"),
	}
}

// Initialize rewrites the cached symbol set from the durable store.
func (s *Service) Initialize(ctx context.Context) error {
	symbols, err := s.directory.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}
	if len(symbols) == 0 {
		s.logger.Warn("no symbols found in durable store")
		return nil
	}
	if err := s.cache.ReplaceSymbols(ctx, symbols); err != nil {
		return fmt.Errorf("populate symbol set: %w", err)
	}
	s.logger.WithField("symbols", len(symbols)).Info("symbol set initialized")
	return nil
}

// Sync applies an incremental diff between the durable store and the cache.
func (s *Service) Sync(ctx context.Context) error {
	current, err := s.directory.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}
	existing, err := s.cache.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("read cached symbols: %w", err)
	}

	toAdd, toRemove := diff(current, existing)
	if len(toAdd) == 0 && len(toRemove) == 0 {
		s.logger.Debug("symbol set already in sync")
		return nil
	}
	if err := s.cache.AddSymbols(ctx, toAdd); err != nil {
		return fmt.Errorf("add symbols: %w", err)
	}
	if err := s.cache.RemoveSymbols(ctx, toRemove); err != nil {
		return fmt.Errorf("remove symbols: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"added":   len(toAdd),
		"removed": len(toRemove),
	}).Info("symbol set synced")
	return nil
}

// Watch blocks on durable-store change notifications and re-syncs on each
// one, re-establishing the listener after failures.
func (s *Service) Watch(ctx context.Context) error {
	for {
		err := s.directory.ListenSymbolChanges(ctx, func(cctx context.Context) {
			s.logger.Info("symbol change notification received")
			if err := s.Sync(cctx); err != nil {
				s.logger.WithError(err).Warn("symbol sync failed")
			}
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WithError(err).Warn("symbol listener lost, retrying")
		if err := retry.Sleep(ctx, listenRetryDelay); err != nil {
			return err
		}
	}
}

func diff(current, existing []string) (toAdd, toRemove []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, symbol := range current {
		currentSet[symbol] = struct{}{}
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, symbol := range existing {
		existingSet[symbol] = struct{}{}
	}

	for _, symbol := range current {
		if _, ok := existingSet[symbol]; !ok {
			toAdd = append(toAdd, symbol)
		}
	}
	for _, symbol := range existing {
		if _, ok := currentSet[symbol]; !ok {
			toRemove = append(toRemove, symbol)
		}
	}
	return toAdd, toRemove
}
