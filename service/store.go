package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/simstech/github-stats-service/model"
	log "github.com/sirupsen/logrus"
)

// storeFile is the on-disk layout of the persisted snapshots
type storeFile struct {
	SavedAt   time.Time                 `json:"saved_at"`
	Snapshots map[string]model.Snapshot `json:"snapshots"`
}

// SnapshotStore keeps the latest snapshot per profile. Put replaces the value
// wholesale under the write lock, so readers never observe a half-updated
// snapshot. When a file path is configured, every Put is also persisted
// (atomic tmp-file + rename) so restarts serve the last good data immediately.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]model.Snapshot
	filePath  string
}

func NewSnapshotStore(filePath string) (*SnapshotStore, error) {
	store := &SnapshotStore{
		snapshots: make(map[string]model.Snapshot),
		filePath:  filePath,
	}

	if filePath == "" {
		return store, nil
	}

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		log.WithField("path", filePath).Debug("no snapshot file found, starting empty")
		return store, nil
	}
	if err != nil {
		return nil, err
	}

	var persisted storeFile
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, err
	}

	if persisted.Snapshots != nil {
		store.snapshots = persisted.Snapshots
	}

	log.WithFields(log.Fields{
		"path":      filePath,
		"snapshots": len(store.snapshots),
		"age":       time.Since(persisted.SavedAt).Round(time.Second),
	}).Info("loaded persisted snapshots")

	return store, nil
}

// Get returns the latest snapshot for the profile, model.ErrNotFound when no
// cycle succeeded yet. Never touches the network.
func (s *SnapshotStore) Get(profileID string) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, found := s.snapshots[profileID]
	if !found {
		return model.Snapshot{}, model.ErrNotFound
	}

	return snapshot, nil
}

// Put atomically replaces the stored snapshot for the profile
func (s *SnapshotStore) Put(profileID string, snapshot model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[profileID] = snapshot

	if s.filePath == "" {
		return nil
	}

	return s.saveLocked()
}

// Delete drops the snapshot when its owning profile is deleted
func (s *SnapshotStore) Delete(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.snapshots[profileID]; !found {
		return nil
	}

	delete(s.snapshots, profileID)

	if s.filePath == "" {
		return nil
	}

	return s.saveLocked()
}

// saveLocked persists the map, caller must hold the write lock
func (s *SnapshotStore) saveLocked() error {
	data, err := json.MarshalIndent(storeFile{
		SavedAt:   time.Now(),
		Snapshots: s.snapshots,
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}

	// tmp file then rename so a crash mid-write never corrupts the store
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return err
	}

	return nil
}
