package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/tokengate/internal/store/filestore"
	"go.uber.org/zap"
)

// Errors returned by the persona manager.
var (
	ErrUnknownPersona  = errors.New("unknown persona")
	ErrTooManyPersonas = errors.New("too many custom personas")
	ErrInvalidPersona  = errors.New("invalid persona")
)

const (
	selectionsFileName = "user_personas.json"
	customFileName     = "custom_personas.json"

	defaultPersonaName    = "Nova"
	defaultMaxCustomCount = 5
)

// Config holds persona manager settings. Zero values fall back to the
// defaults above.
type Config struct {
	PersonasDir    string
	DataDir        string
	DefaultPersona string
	MaxCustom      int
}

// Manager resolves the persona prompt used to frame a user's chat
// messages: system personas loaded from a directory of .txt prompt
// files, a per-user selection, and a bounded number of user-defined
// personas. Selections and custom personas persist through the same
// atomic JSON files the metering stores use.
type Manager struct {
	mu     sync.Mutex
	logger *zap.Logger

	personasDir    string
	dataDir        string
	defaultPersona string
	maxCustom      int

	system     map[string]string
	selections map[string]string
	custom     map[string]map[string]string
}

// NewManager loads the persona manager.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = defaultPersonaName
	}
	if cfg.MaxCustom <= 0 {
		cfg.MaxCustom = defaultMaxCustomCount
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create persona data dir: %w", err)
	}
	manager := &Manager{
		logger:         logger,
		personasDir:    cfg.PersonasDir,
		dataDir:        cfg.DataDir,
		defaultPersona: cfg.DefaultPersona,
		maxCustom:      cfg.MaxCustom,
		selections:     filestore.LoadMap[string](filepath.Join(cfg.DataDir, selectionsFileName), logger),
		custom:         filestore.LoadMap[map[string]string](filepath.Join(cfg.DataDir, customFileName), logger),
	}
	manager.system = manager.loadSystemPersonas()
	return manager, nil
}

// loadSystemPersonas reads every .txt file under the personas directory;
// the file stem is the persona name, the trimmed content its prompt.
func (manager *Manager) loadSystemPersonas() map[string]string {
	personas := make(map[string]string)
	if manager.personasDir == "" {
		return personas
	}
	paths, err := filepath.Glob(filepath.Join(manager.personasDir, "*.txt"))
	if err != nil {
		manager.logger.Error("list persona files", zap.Error(err))
		return personas
	}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			manager.logger.Error("read persona file", zap.String("path", path), zap.Error(err))
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), ".txt")
		personas[name] = strings.TrimSpace(string(raw))
	}
	manager.logger.Info("system personas loaded", zap.Int("count", len(personas)))
	return personas
}

// ReloadSystemPersonas re-reads the personas directory.
func (manager *Manager) ReloadSystemPersonas() {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	manager.system = manager.loadSystemPersonas()
}

// SystemPersonas lists the system persona names, sorted.
func (manager *Manager) SystemPersonas() []string {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	names := make([]string, 0, len(manager.system))
	for name := range manager.system {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select stores the user's persona choice. The name must match a system
// persona or one of the user's own custom personas.
func (manager *Manager) Select(userID string, name string) error {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if !manager.knownLocked(userID, name) {
		return fmt.Errorf("%w: %s", ErrUnknownPersona, name)
	}
	manager.selections[userID] = name
	manager.saveSelectionsLocked()
	return nil
}

// Selected returns the user's chosen persona name, falling back to the
// default persona.
func (manager *Manager) Selected(userID string) string {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if name, ok := manager.selections[userID]; ok {
		return name
	}
	return manager.defaultPersona
}

// PromptFor resolves the prompt text framing the user's messages. An
// unknown selection falls back to the default persona's prompt; an empty
// string means no persona framing.
func (manager *Manager) PromptFor(userID string) string {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	name, ok := manager.selections[userID]
	if !ok {
		name = manager.defaultPersona
	}
	if prompt, ok := manager.custom[userID][name]; ok {
		return prompt
	}
	if prompt, ok := manager.system[name]; ok {
		return prompt
	}
	return manager.system[manager.defaultPersona]
}

// SetCustom creates or updates one of the user's custom personas. A new
// name beyond the configured maximum is rejected.
func (manager *Manager) SetCustom(userID string, name string, prompt string) error {
	trimmedName := strings.TrimSpace(name)
	trimmedPrompt := strings.TrimSpace(prompt)
	if trimmedName == "" || trimmedPrompt == "" {
		return fmt.Errorf("%w: name and prompt are required", ErrInvalidPersona)
	}
	manager.mu.Lock()
	defer manager.mu.Unlock()
	owned := manager.custom[userID]
	if _, exists := owned[trimmedName]; !exists && len(owned) >= manager.maxCustom {
		return fmt.Errorf("%w: limit %d", ErrTooManyPersonas, manager.maxCustom)
	}
	if owned == nil {
		owned = make(map[string]string)
		manager.custom[userID] = owned
	}
	owned[trimmedName] = trimmedPrompt
	manager.saveCustomLocked()
	return nil
}

// DeleteCustom removes one of the user's custom personas, clearing the
// selection when it pointed at the removed persona.
func (manager *Manager) DeleteCustom(userID string, name string) error {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	owned := manager.custom[userID]
	if _, exists := owned[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownPersona, name)
	}
	delete(owned, name)
	if len(owned) == 0 {
		delete(manager.custom, userID)
	}
	manager.saveCustomLocked()
	if manager.selections[userID] == name {
		delete(manager.selections, userID)
		manager.saveSelectionsLocked()
	}
	return nil
}

// CustomPersonas lists the user's custom persona names, sorted.
func (manager *Manager) CustomPersonas(userID string) []string {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	names := make([]string, 0, len(manager.custom[userID]))
	for name := range manager.custom[userID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (manager *Manager) knownLocked(userID string, name string) bool {
	if _, ok := manager.system[name]; ok {
		return true
	}
	_, ok := manager.custom[userID][name]
	return ok
}

func (manager *Manager) saveSelectionsLocked() {
	path := filepath.Join(manager.dataDir, selectionsFileName)
	if err := filestore.SaveJSON(path, manager.selections); err != nil {
		manager.logger.Error("save persona selections", zap.Error(err))
	}
}

func (manager *Manager) saveCustomLocked() {
	path := filepath.Join(manager.dataDir, customFileName)
	if err := filestore.SaveJSON(path, manager.custom); err != nil {
		manager.logger.Error("save custom personas", zap.Error(err))
	}
}
