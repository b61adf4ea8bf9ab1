package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MarkoPoloResearchLab/tokengate/pkg/metering"
	"go.uber.org/zap"
)

const (
	quotaFileName  = "user_message_limits.json"
	creditFileName = "ai_tokens.json"
	voteFileName   = "voted_users.json"
)

// Store keeps the three metering maps in memory and mirrors every
// mutation to JSON files under its data directory. Writes go to a
// temporary file first and are renamed over the target, so a reader
// always sees either the old or the new complete state. When a save
// fails the in-memory map stays authoritative until the next save
// succeeds.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger

	quotas  map[string]quotaRecord
	credits map[string][]creditEntryRecord
	votes   map[string]voteRecord
}

// Open loads the metering stores from dir, creating the directory as
// needed. Unreadable or corrupt files degrade to empty maps; only the
// directory creation itself can fail.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store := &Store{dir: dir, logger: logger}
	store.quotas = LoadMap[quotaRecord](filepath.Join(dir, quotaFileName), logger)
	store.credits = LoadMap[[]creditEntryRecord](filepath.Join(dir, creditFileName), logger)
	store.votes = LoadMap[voteRecord](filepath.Join(dir, voteFileName), logger)
	return store, nil
}

// Dir returns the data directory backing the store.
func (store *Store) Dir() string {
	return store.dir
}

// CreditEntries implements metering.LedgerStore.
func (store *Store) CreditEntries(userID metering.UserID) []metering.CreditEntry {
	store.mu.Lock()
	defer store.mu.Unlock()
	records := store.credits[userID.String()]
	entries := make([]metering.CreditEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.toDomain())
	}
	return entries
}

// PutCreditEntries implements metering.LedgerStore.
func (store *Store) PutCreditEntries(userID metering.UserID, entries []metering.CreditEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	records := make([]creditEntryRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, newCreditEntryRecord(entry))
	}
	store.credits[userID.String()] = records
	return store.save(creditFileName, store.credits)
}

// QuotaRecord implements metering.QuotaStore.
func (store *Store) QuotaRecord(userID metering.UserID) (metering.QuotaRecord, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.quotas[userID.String()]
	if !ok {
		return metering.QuotaRecord{}, false
	}
	return record.toDomain(), true
}

// PutQuotaRecord implements metering.QuotaStore.
func (store *Store) PutQuotaRecord(userID metering.UserID, record metering.QuotaRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.quotas[userID.String()] = newQuotaRecord(record)
	return store.save(quotaFileName, store.quotas)
}

// VoteRecord implements metering.VoteStore.
func (store *Store) VoteRecord(userID metering.UserID) (metering.VoteRecord, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.votes[userID.String()]
	if !ok {
		return metering.VoteRecord{}, false
	}
	return record.toDomain(), true
}

// PutVoteRecord implements metering.VoteStore.
func (store *Store) PutVoteRecord(userID metering.UserID, record metering.VoteRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.votes[userID.String()] = newVoteRecord(record)
	return store.save(voteFileName, store.votes)
}

func (store *Store) save(fileName string, records any) error {
	path := filepath.Join(store.dir, fileName)
	if err := SaveJSON(path, records); err != nil {
		store.logger.Error("metering store save failed, in-memory state stays authoritative",
			zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

// LoadMap reads a JSON object file into a keyed map. A missing file is
// an empty map; an unreadable or corrupt file is logged as a
// data-quality event and degrades to an empty map rather than failing
// startup.
func LoadMap[T any](path string, logger *zap.Logger) map[string]T {
	records := make(map[string]T)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Error("store file unreadable, starting empty", zap.String("path", path), zap.Error(err))
		}
		return records
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		logger.Error("store file corrupt, starting empty", zap.String("path", path), zap.Error(err))
		return make(map[string]T)
	}
	return records
}

// SaveJSON writes records to path atomically: marshal, write a sibling
// temporary file, then rename it over the target.
func SaveJSON(path string, records any) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmpPath), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
