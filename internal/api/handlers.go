package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/medrex/healthcare-records/pkg/types"
)

// maxBodyBytes bounds request bodies; record fields are limited separately.
const maxBodyBytes = 1 << 20

type ownerResponse struct {
	Owner string `json:"owner"`
}

type authorizeRequest struct {
	Provider string `json:"provider"`
}

type providerResponse struct {
	Provider   string `json:"provider"`
	Authorized bool   `json:"authorized"`
}

type addRecordRequest struct {
	PatientName string `json:"patient_name"`
	Diagnosis   string `json:"diagnosis"`
	Treatment   string `json:"treatment"`
}

type addRecordResponse struct {
	PatientID string `json:"patient_id"`
	RecordID  uint64 `json:"record_id"`
}

type recordsResponse struct {
	PatientID string             `json:"patient_id"`
	Records   []types.RecordView `json:"records"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	if err := s.store.Initialize(r.Context(), caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ownerResponse{Owner: caller.String()})
}

func (s *Server) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := s.store.GetOwner(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ownerResponse{Owner: owner.String()})
}

func (s *Server) handleAuthorizeProvider(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	provider, err := types.ParseIdentity(req.Provider)
	if err != nil {
		s.writeError(w, r, types.ErrInvalidIdentity.WithDetail("field", "provider"))
		return
	}

	if err := s.store.AuthorizeProvider(r.Context(), callerFromContext(r.Context()), provider); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, providerResponse{Provider: provider.String(), Authorized: true})
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	identity, err := types.ParseIdentity(mux.Vars(r)["identity"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	authorized, err := s.store.IsAuthorized(r.Context(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, providerResponse{Provider: identity.String(), Authorized: authorized})
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req addRecordRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	canonical, err := patientIDFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recordID, err := s.store.AddRecord(r.Context(), callerFromContext(r.Context()), canonical.String(), req.PatientName, req.Diagnosis, req.Treatment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/patients/"+canonical.String()+"/records/"+strconv.FormatUint(recordID, 10))
	writeJSON(w, http.StatusCreated, addRecordResponse{PatientID: canonical.String(), RecordID: recordID})
}

func (s *Server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	canonical, err := patientIDFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.store.GetPatientRecords(r.Context(), canonical.String())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("X-Record-Count", strconv.Itoa(len(records)))
	writeJSON(w, http.StatusOK, recordsResponse{PatientID: canonical.String(), Records: records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	recordID, err := strconv.ParseUint(vars["recordID"], 10, 64)
	if err != nil {
		s.writeError(w, r, types.ErrInvalidInput.WithDetail("field", "record_id"))
		return
	}

	record, err := s.store.GetPatientRecord(r.Context(), vars["patientID"], recordID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// patientIDFromPath parses the {patientID} route variable.
func patientIDFromPath(r *http.Request) (types.PatientID, error) {
	return types.ParsePatientID(mux.Vars(r)["patientID"])
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return types.ErrInvalidInput.WithDetail("reason", "empty request body")
		}
		return types.ErrInvalidInput.WithDetail("reason", err.Error())
	}
	return nil
}
