package http

import (
	"net/http"

	"github.com/google/uuid"
)

type createGroupRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	MemberIDs   []uuid.UUID `json:"member_ids"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := s.groups.Create(r.Context(), requester, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	g, err := s.groups.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	if err := s.groups.Join(r.Context(), id, requester); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	if err := s.groups.Leave(r.Context(), id, requester); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	members, err := s.groups.Members(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	var req addMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		writeErrorStatus(w, http.StatusBadRequest, "missing user_id")
		return
	}

	if err := s.groups.AddMember(r.Context(), id, requester, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	if err := s.groups.RemoveMember(r.Context(), groupID, requester, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
