package http

import (
	"net/http"

	"github.com/google/uuid"

	"splitledger/internal/core"
)

type pairwiseBalanceResponse struct {
	Subject     uuid.UUID `json:"subject"`
	Counterpart uuid.UUID `json:"counterpart"`
	// Net per currency; positive means the counterpart owes the subject.
	Balances map[string]core.Money `json:"balances"`
}

func (s *Server) handlePairwiseBalance(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	counterpart, ok := pathUUID(w, r, "counterpartID")
	if !ok {
		return
	}

	balances, err := s.balances.Pairwise(r.Context(), requester, counterpart)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if balances == nil {
		balances = map[string]core.Money{}
	}
	writeJSON(w, http.StatusOK, pairwiseBalanceResponse{
		Subject:     requester,
		Counterpart: counterpart,
		Balances:    balances,
	})
}

func (s *Server) handleGroupBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	gb, err := s.balances.Group(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gb)
}
