package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chatdb/pkg/models"
	"chatdb/pkg/settings"
	"chatdb/pkg/utils"
)

type handlers struct {
	deps Deps
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": h.deps.Version})
}

func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Current       string                `json:"current"`
		Conversations []models.Conversation `json:"conversations"`
	}{
		Current:       h.deps.Chat.CurrentConversationID(),
		Conversations: h.deps.Chat.Conversations(),
	})
}

func (h *handlers) createConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	id, err := h.deps.Chat.CreateConversation(body.Title)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.deps.Chat.DeleteConversation(id); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listMessages loads the conversation's messages into the projection
// (marking it current) and returns them in createdAt order.
func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.deps.Chat.LoadMessages(id); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversation string               `json:"conversation"`
		Messages     []models.ChatMessage `json:"messages"`
	}{Conversation: id, Messages: h.deps.Chat.Messages()})
}

func (h *handlers) appendMessage(w http.ResponseWriter, r *http.Request) {
	var m models.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
		utils.JSONError(w, http.StatusBadRequest, "role must be user or assistant")
		return
	}
	out, err := h.deps.Chat.AddMessage(m)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, out)
}

// truncateFrom deletes the message and everything after it. Unknown ids
// are a no-op, mirroring the facade contract.
func (h *handlers) truncateFrom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.deps.Chat.RemoveMessagesFrom(id); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var m models.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m.ID = id
	if err := h.deps.Chat.UpdateMessage(&m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateReasoning(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Reasoning string `json:"reasoning_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	var target *models.ChatMessage
	for _, m := range h.deps.Chat.Messages() {
		if m.ID == id {
			mm := m
			target = &mm
			break
		}
	}
	if err := h.deps.Chat.UpdateReasoning(body.Reasoning, target); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Settings.Load()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, s)
}

func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	var s settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.deps.Settings.Save(s); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Settings.Reset()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, s)
}
