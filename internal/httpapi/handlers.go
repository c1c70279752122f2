package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/easeaico/echominds/internal/memory"
	"github.com/easeaico/echominds/internal/persona"
	"github.com/easeaico/echominds/internal/types"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.chat.Chat(r.Context(), req, s.generationParams())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type messageBody struct {
	Message string `json:"message"`
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.ClearConversation(r.Context(), pairFromURL(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Conversation cleared successfully"})
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	characters, err := s.personas.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if characters == nil {
		characters = []types.Character{}
	}
	writeJSON(w, http.StatusOK, characters)
}

func (s *Server) handleCreateCharacter(w http.ResponseWriter, r *http.Request) {
	var req persona.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.personas.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	c, err := s.personas.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCharacter(w http.ResponseWriter, r *http.Request) {
	var req persona.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.personas.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.personas.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, types.NotFoundf("character %s", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecompileCharacter(w http.ResponseWriter, r *http.Request) {
	c, err := s.personas.Recompile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type createMemoryBody struct {
	Content    string         `json:"content"`
	MemoryType string         `json:"memoryType,omitempty"`
	Importance *float64       `json:"importance,omitempty"`
	IsPinned   bool           `json:"isPinned,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var body createMemoryBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	pair := pairFromURL(r)
	entry, err := s.memories.Create(r.Context(), memory.CreateRequest{
		CharacterID: pair.CharacterID,
		UserID:      pair.UserID,
		Content:     body.Content,
		MemoryType:  body.MemoryType,
		Importance:  body.Importance,
		IsPinned:    body.IsPinned,
		Metadata:    body.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	var filter memory.ListFilter
	query := r.URL.Query()
	if raw := query.Get("type"); raw != "" {
		mt, err := types.ParseMemoryType(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.Type = &mt
	}
	if raw := query.Get("pinned"); raw != "" {
		pinned, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, types.Validationf("pinned must be a boolean"))
			return
		}
		filter.PinnedOnly = pinned
	}
	entries, err := s.memories.List(r.Context(), pairFromURL(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.MemoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.memories.Statistics(r.Context(), pairFromURL(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memoryID")
	entry, err := s.memories.Get(r.Context(), pairFromURL(r), id)
	s.writeMemory(w, r, id, entry, err)
}

// writeMemory writes entry, treating a nil entry as an unknown id.
func (s *Server) writeMemory(w http.ResponseWriter, r *http.Request, id string, entry *types.MemoryEntry, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entry == nil {
		writeError(w, r, types.NotFoundf("memory %s", id))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req memory.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "memoryID")
	entry, err := s.memories.Update(r.Context(), pairFromURL(r), id, req)
	s.writeMemory(w, r, id, entry, err)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memoryID")
	removed, err := s.memories.Delete(r.Context(), pairFromURL(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, types.NotFoundf("memory %s", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pinBody struct {
	Pinned *bool `json:"pinned,omitempty"`
}

// handlePinMemory pins by default; {"pinned": false} unpins.
func (s *Server) handlePinMemory(w http.ResponseWriter, r *http.Request) {
	body := pinBody{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
	}
	pinned := body.Pinned == nil || *body.Pinned
	id := chi.URLParam(r, "memoryID")
	entry, err := s.memories.Pin(r.Context(), pairFromURL(r), id, pinned)
	s.writeMemory(w, r, id, entry, err)
}
