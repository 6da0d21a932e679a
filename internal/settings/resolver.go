// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings resolves chat settings against the backend: initial load
// of settings, provider, and model catalog, plus saves that adopt the
// backend's echoed merge result.
package settings

import (
	"context"
	"sync"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver caches the resolved chat settings, active provider, and the
// provider→models catalog. The backend's persisted value is authoritative:
// saves replace the cache with the backend's echo, never with the local
// merge, so backend-side validation and defaulting are always reflected.
type Resolver struct {
	backend transport.Backend

	mu       sync.RWMutex
	settings model.ChatSettings
	provider string
	catalog  map[string][]string
	loaded   bool
}

// NewResolver creates a resolver with default settings until Load runs.
func NewResolver(backend transport.Backend) *Resolver {
	return &Resolver{
		backend:  backend,
		settings: model.DefaultChatSettings(),
	}
}

// Load fetches settings, provider, and the model catalog. The three calls
// are independent and run concurrently; the first error wins but the
// successful results are still cached.
func (r *Resolver) Load(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		settings model.ChatSettings
		provider string
		catalog  map[string][]string

		settingsErr, providerErr, catalogErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		settings, settingsErr = r.backend.GetChatSettings(ctx)
	}()
	go func() {
		defer wg.Done()
		provider, providerErr = r.backend.GetProvider(ctx)
	}()
	go func() {
		defer wg.Done()
		catalog, catalogErr = r.backend.GetProviderModels(ctx)
	}()
	wg.Wait()

	r.mu.Lock()
	if settingsErr == nil {
		settings.Normalize()
		r.settings = settings
	}
	if providerErr == nil {
		r.provider = provider
	}
	if catalogErr == nil {
		r.catalog = catalog
	}
	r.loaded = settingsErr == nil && providerErr == nil && catalogErr == nil
	r.mu.Unlock()

	if settingsErr != nil {
		return settingsErr
	}
	if providerErr != nil {
		return providerErr
	}
	return catalogErr
}

// Save applies a partial update backend-side and adopts the echoed result.
func (r *Resolver) Save(ctx context.Context, patch model.SettingsPatch) (model.ChatSettings, error) {
	echo, err := r.backend.SaveChatSettings(ctx, patch)
	if err != nil {
		return model.ChatSettings{}, err
	}
	echo.Normalize()

	r.mu.Lock()
	r.settings = echo
	r.mu.Unlock()
	return echo, nil
}

// =============================================================================
// READS
// =============================================================================

// Settings returns the current resolved settings.
func (r *Resolver) Settings() model.ChatSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// Provider returns the active provider name, or "" before a load.
func (r *Resolver) Provider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.provider
}

// Models returns the model list for the active provider, falling back to
// the built-in list when the provider is absent from the catalog.
func (r *Resolver) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if models, ok := r.catalog[r.provider]; ok && len(models) > 0 {
		return append([]string(nil), models...)
	}
	return append([]string(nil), model.FallbackModels...)
}

// Loaded reports whether the last Load completed without error.
func (r *Resolver) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}
