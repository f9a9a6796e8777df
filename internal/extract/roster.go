package extract

import (
	"log/slog"

	"github.com/raphaelgruber/snapknow/internal/llm"
	"github.com/raphaelgruber/snapknow/internal/retry"
)

// Source serves extractors by identifier. An empty identifier selects the
// default extractor.
type Source interface {
	Extractor(id string) (Extractor, error)
}

// RosterSource adapts the LLM roster into a Source of vision extractors.
type RosterSource struct {
	roster *llm.Roster
	logger *slog.Logger
}

// NewRosterSource wraps a roster. Extractors are constructed per call; they
// are stateless wrappers around the roster's models.
func NewRosterSource(roster *llm.Roster, logger *slog.Logger) *RosterSource {
	return &RosterSource{roster: roster, logger: logger}
}

// Extractor returns the vision extractor bound to an identifier. An unknown
// identifier is a permanent error: retrying cannot make it exist.
func (s *RosterSource) Extractor(id string) (Extractor, error) {
	model, err := s.roster.Select(id)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return NewVisionExtractor(model, s.logger), nil
}

// Static returns a Source that serves the same extractor for every
// identifier. Used by tests and single-extractor wiring.
func Static(e Extractor) Source {
	return staticSource{e: e}
}

type staticSource struct {
	e Extractor
}

func (s staticSource) Extractor(string) (Extractor, error) {
	return s.e, nil
}
