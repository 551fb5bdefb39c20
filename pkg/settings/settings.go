// Package settings persists the chat configuration consumed by UI
// callers. It lives in its own key namespace and is never touched by the
// persistence core in pkg/chat.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"

	"chatdb/pkg/store"
)

const settingsKey = "settings:chat"

// OnlineSearch modes.
const (
	SearchNone   = "none"
	SearchSimple = "simple"
	SearchDeep   = "deep"
)

// Provider selection strategies.
const (
	StrategyAuto  = "auto"
	StrategySpeed = "speed"
	StrategyPrice = "price"
)

type Settings struct {
	DeepThinking     bool   `json:"isDeepThinking"`
	OnlineSearch     string `json:"onlineSearch"`
	ProviderStrategy string `json:"providerStrategy"`
	NoSkip           bool   `json:"notskip"`
}

// Defaults returns the out-of-the-box settings.
func Defaults() Settings {
	return Settings{
		DeepThinking:     false,
		OnlineSearch:     SearchNone,
		ProviderStrategy: StrategyAuto,
		NoSkip:           false,
	}
}

// Validate checks enum fields.
func (s Settings) Validate() error {
	switch s.OnlineSearch {
	case SearchNone, SearchSimple, SearchDeep:
	default:
		return fmt.Errorf("invalid online search mode %q", s.OnlineSearch)
	}
	switch s.ProviderStrategy {
	case StrategyAuto, StrategySpeed, StrategyPrice:
	default:
		return fmt.Errorf("invalid provider strategy %q", s.ProviderStrategy)
	}
	return nil
}

// Manager loads and saves settings against a store instance.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Load returns the persisted settings, or the defaults when nothing has
// been saved yet.
func (m *Manager) Load() (Settings, error) {
	v, err := m.store.GetKey(settingsKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Defaults(), nil
		}
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(v, &s); err != nil {
		return Settings{}, fmt.Errorf("corrupt settings record: %w", err)
	}
	return s, nil
}

// Save validates and persists the settings.
func (m *Manager) Save(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.store.SaveKey(settingsKey, data)
}

// Reset restores and persists the defaults, returning them.
func (m *Manager) Reset() (Settings, error) {
	d := Defaults()
	if err := m.Save(d); err != nil {
		return Settings{}, err
	}
	return d, nil
}
