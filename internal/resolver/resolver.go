// Package resolver classifies incoming observations against stored data for the same key.
package resolver

import "FuelPriceMonitor/internal/domain"

// Resolve decides whether obs is new, a correction or a duplicate of existing.
// existing must share obs's identity key, or be nil when nothing is stored.
// The decision depends only on its inputs, so retries against the same snapshot agree.
func Resolve(obs domain.Observation, existing *domain.Observation) domain.Resolution {
	if existing == nil {
		return domain.Resolution{Kind: domain.ResolutionNew}
	}
	if existing.Price.Equal(obs.Price) {
		return domain.Resolution{Kind: domain.ResolutionDuplicate}
	}

	previous := *existing
	return domain.Resolution{Kind: domain.ResolutionCorrection, Previous: &previous}
}

// Snapshot overlays observations staged in the current batch on top of a storage lookup,
// so later entries for the same key in one batch resolve against earlier ones.
type Snapshot struct {
	staged map[domain.Key]domain.Observation
	lookup func(domain.Key) (*domain.Observation, error)
}

// NewSnapshot wraps a storage lookup; lookup returns nil when the key is absent.
func NewSnapshot(lookup func(domain.Key) (*domain.Observation, error)) *Snapshot {
	return &Snapshot{
		staged: make(map[domain.Key]domain.Observation),
		lookup: lookup,
	}
}

// Existing returns the current version of key, preferring staged values.
func (s *Snapshot) Existing(key domain.Key) (*domain.Observation, error) {
	if obs, ok := s.staged[key]; ok {
		return &obs, nil
	}
	if s.lookup == nil {
		return nil, nil
	}
	return s.lookup(key)
}

// Resolve classifies obs and stages it unless it is a duplicate.
func (s *Snapshot) Resolve(obs domain.Observation) (domain.Resolution, error) {
	existing, err := s.Existing(obs.Key())
	if err != nil {
		return domain.Resolution{}, err
	}

	res := Resolve(obs, existing)
	if res.Kind != domain.ResolutionDuplicate {
		s.staged[obs.Key()] = obs
	}
	return res, nil
}

// Staged returns the latest version of every key written in this batch.
func (s *Snapshot) Staged() []domain.Observation {
	out := make([]domain.Observation, 0, len(s.staged))
	for _, obs := range s.staged {
		out = append(out, obs)
	}
	return out
}
