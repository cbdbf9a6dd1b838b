package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/npezzotti/chatsync/internal/rest"
)

type SendMessageRequest struct {
	ConversationId int64  `json:"conversationId"`
	Content        string `json:"content"`
}

type SendMessageResponse struct {
	PlaceholderId int64 `json:"placeholderId"`
}

type ConversationRequest struct {
	Id int64 `json:"id"`
}

func (s *Server) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	errResp := errorFor(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, st)
}

func (s *Server) conversations(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		convs, err := s.engine.Conversations(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJson(w, http.StatusOK, convs)
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		errResp := rest.NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, ok, err := s.engine.Conversation(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		errResp := rest.NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	s.writeJson(w, http.StatusOK, conv)
}

func (s *Server) decodeConversation(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var req ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Id <= 0 {
		errResp := rest.NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return 0, false
	}
	return req.Id, true
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.decodeConversation(w, r)
	if !ok {
		return
	}
	if err := s.engine.Activate(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := s.decodeConversation(w, r)
	if !ok {
		return
	}
	if err := s.engine.MarkRead(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Timeline(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, view)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationId <= 0 {
		errResp := rest.NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := s.engine.Send(r.Context(), req.ConversationId, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusAccepted, SendMessageResponse{PlaceholderId: id})
}
