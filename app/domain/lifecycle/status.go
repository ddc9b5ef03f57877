package lifecycle

import "time"

type GenerationStatus struct {
	Version     string     `json:"version"`
	BuildHash   string     `json:"build_hash"`
	State       State      `json:"state"`
	InstalledAt *time.Time `json:"installed_at,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

type Status struct {
	Active          *GenerationStatus `json:"active"`
	Waiting         *GenerationStatus `json:"waiting"`
	RequestsHalted  bool              `json:"requests_halted"`
	ScopeGeneration uint64            `json:"scope_generation"`
	Clients         int               `json:"clients"`
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	s := Status{
		Active:  generationStatus(m.active),
		Waiting: generationStatus(m.waiting),
	}
	m.mu.RUnlock()
	s.RequestsHalted = m.scope.Halted()
	s.ScopeGeneration = m.scope.Generation()
	s.Clients = m.registry.Len()
	return s
}

func generationStatus(gen *Generation) *GenerationStatus {
	if gen == nil {
		return nil
	}
	s := &GenerationStatus{
		Version:   gen.Manifest.Version,
		BuildHash: gen.Manifest.BuildHash,
		State:     gen.State,
	}
	if !gen.InstalledAt.IsZero() {
		t := gen.InstalledAt
		s.InstalledAt = &t
	}
	if !gen.ActivatedAt.IsZero() {
		t := gen.ActivatedAt
		s.ActivatedAt = &t
	}
	return s
}
