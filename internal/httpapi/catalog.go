package httpapi

import (
	"net/http"

	"github.com/ent0n29/kindred/internal/companion"
)

type catalogResponse struct {
	DefaultPersonality string                  `json:"default_personality"`
	Personalities      []companion.Personality `json:"personalities"`
	Modes              []companion.Mode        `json:"modes"`
	// SelectableModes are the modes the live model may switch to.
	SelectableModes []string `json:"selectable_modes"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	c := s.companion.Catalog()
	respondJSON(w, http.StatusOK, catalogResponse{
		DefaultPersonality: c.Default().ID,
		Personalities:      c.Personalities,
		Modes:              c.Modes,
		SelectableModes:    c.SelectableModes(),
	})
}
