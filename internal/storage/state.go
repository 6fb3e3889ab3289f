package storage

import (
	"fmt"
	"os"

	"github.com/conorfennell/flipstack/internal/domain"
)

// ReadStats returns the streak record.
func (s *Store) ReadStats() (domain.Stats, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	var stats domain.Stats
	if err := readJSON(s.file(statsFile), &stats); err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

// LoadStats is ReadStats with failures collapsed to a zero streak.
func (s *Store) LoadStats() domain.Stats {
	stats, err := s.ReadStats()
	if err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Treating unreadable stats as empty", "error", err)
		}
		return domain.Stats{}
	}
	return stats
}

// SaveStats overwrites the streak record.
func (s *Store) SaveStats(stats domain.Stats) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := writeJSON(s.file(statsFile), stats); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// LoadSettings returns stored settings layered over the defaults.
func (s *Store) LoadSettings() domain.Settings {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	settings := domain.DefaultSettings()
	if err := readJSON(s.file(settingsFile), &settings); err != nil {
		if !isNotExist(err) {
			s.logger.Warn("Using default settings", "error", err)
		}
		return domain.DefaultSettings()
	}
	return settings
}

// SaveSettings persists settings.
func (s *Store) SaveSettings(settings domain.Settings) error {
	if err := s.validate.Struct(settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := writeJSON(s.file(settingsFile), settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// SeedSettings stores settings only if none have been saved yet. It reports
// whether it wrote anything.
func (s *Store) SeedSettings(settings domain.Settings) (bool, error) {
	s.stateMu.Lock()
	_, err := os.Stat(s.file(settingsFile))
	s.stateMu.Unlock()
	if err == nil {
		return false, nil
	}
	if !isNotExist(err) {
		return false, fmt.Errorf("failed to check settings: %w", err)
	}
	return true, s.SaveSettings(settings)
}
