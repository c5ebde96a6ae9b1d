// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blinklabs-io/ratify"
	"github.com/blinklabs-io/ratify/campaign"
)

// maxRequestBodySize bounds request bodies, which carry at most a signed
// transaction
const maxRequestBodySize = 1 << 20

// writeJSON writes a JSON response with the given status code
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

// errorStatus maps service errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, campaign.ErrInvalidParameter),
		errors.Is(err, ErrInvalidListParameters):
		return http.StatusBadRequest
	case errors.Is(err, campaign.ErrCampaignNotFound),
		errors.Is(err, campaign.ErrTxNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrAmbiguousState),
		errors.Is(err, campaign.ErrGuardViolation),
		errors.Is(err, campaign.ErrStateChanged),
		errors.Is(err, campaign.ErrActionInProgress):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrSubmissionRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, campaign.ErrChainUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, "internal error")
		return
	}
	if campaign.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return campaign.NewInvalidParameterError("body", err.Error())
	}
	return nil
}

func parseIdentity(field string, addr string) (campaign.Identity, error) {
	if addr == "" {
		return campaign.Identity{}, campaign.NewInvalidParameterError(
			field,
			"address required",
		)
	}
	return campaign.IdentityFromAddress(addr)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleCampaigns handles GET /api/v0/campaigns
func (s *Server) handleCampaigns(
	w http.ResponseWriter,
	r *http.Request,
) {
	params, err := ParseListParams(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	statuses, err := s.service.Campaigns(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	page, total := ListCampaigns(statuses, params)
	setListHeaders(w, total, params)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCampaign(
	w http.ResponseWriter,
	r *http.Request,
) {
	status, err := s.service.Campaign(r.Context(), r.PathValue("address"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleEligibility handles GET /api/v0/campaigns/{address}/eligibility.
// Without a requester the result is for an anonymous viewer.
func (s *Server) handleEligibility(
	w http.ResponseWriter,
	r *http.Request,
) {
	var requester *campaign.Identity
	if addr := r.URL.Query().Get("requester"); addr != "" {
		identity, err := parseIdentity("requester", addr)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		requester = &identity
	}
	eligibility, err := s.service.Eligibility(
		r.Context(),
		r.PathValue("address"),
		requester,
	)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibility)
}

func (s *Server) handleHistory(
	w http.ResponseWriter,
	r *http.Request,
) {
	history, err := s.service.History(r.Context(), r.PathValue("address"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if history == nil {
		history = []campaign.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleAccountCampaigns(
	w http.ResponseWriter,
	r *http.Request,
) {
	identity, err := parseIdentity("address", r.PathValue("address"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	params, err := ParseListParams(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	statuses, err := s.service.RelatedCampaigns(r.Context(), identity)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	page, total := ListCampaigns(statuses, params)
	setListHeaders(w, total, params)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleTxStatus(
	w http.ResponseWriter,
	r *http.Request,
) {
	inclusion, err := s.service.TxStatus(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inclusion)
}

// handlePrepareAction handles
// POST /api/v0/campaigns/{address}/actions/{action}
func (s *Server) handlePrepareAction(
	w http.ResponseWriter,
	r *http.Request,
) {
	action, err := campaign.ParseAction(r.PathValue("action"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	var body ActionRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.handleError(w, r, err)
		return
	}
	requester, err := parseIdentity("requester", body.Requester)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	address := r.PathValue("address")
	plan, err := s.service.Prepare(
		r.Context(),
		address,
		campaign.ActionRequest{
			Action:    action,
			Requester: requester,
			Amount:    body.Amount,
		},
	)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Address: address, Plan: plan})
}

// handleSubmit handles POST /api/v0/campaigns/{address}/submit
func (s *Server) handleSubmit(
	w http.ResponseWriter,
	r *http.Request,
) {
	var body SubmitRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.handleError(w, r, err)
		return
	}
	action, err := campaign.ParseAction(body.Action)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	requester, err := parseIdentity("requester", body.Requester)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	txHash, err := s.service.Submit(r.Context(), ratify.SubmitRequest{
		Address:   r.PathValue("address"),
		Action:    action,
		Requester: requester,
		Snapshot:  body.Snapshot,
		Amount:    body.Amount,
		TxCbor:    body.TxCbor,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{TxHash: txHash})
}

func (s *Server) launchParams(body LaunchRequest) (ratify.LaunchParams, error) {
	creator, err := parseIdentity("creatorAddress", body.CreatorAddress)
	if err != nil {
		return ratify.LaunchParams{}, err
	}
	originRef, err := campaign.ParseOutputRef(body.OriginRef)
	if err != nil {
		return ratify.LaunchParams{}, err
	}
	return ratify.LaunchParams{
		Key: campaign.Key{
			Creator:    creator,
			CampaignID: campaign.CampaignIDFromTitle(body.Title),
			OriginRef:  originRef,
		},
		Goal:        body.Goal,
		Title:       body.Title,
		Description: body.Description,
		ImageURL:    body.ImageURL,
		Category:    body.Category,
	}, nil
}

// handlePrepareLaunch handles POST /api/v0/campaigns
func (s *Server) handlePrepareLaunch(
	w http.ResponseWriter,
	r *http.Request,
) {
	var body LaunchRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.handleError(w, r, err)
		return
	}
	params, err := s.launchParams(body)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	plan, err := s.service.PrepareLaunch(r.Context(), params)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(
		w,
		http.StatusOK,
		PlanResponse{Address: plan.CampaignAddress, Plan: plan},
	)
}

// handleSubmitLaunch handles POST /api/v0/campaigns/submit
func (s *Server) handleSubmitLaunch(
	w http.ResponseWriter,
	r *http.Request,
) {
	var body LaunchRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.handleError(w, r, err)
		return
	}
	params, err := s.launchParams(body)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	txHash, err := s.service.SubmitLaunch(r.Context(), params, body.TxCbor)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{TxHash: txHash})
}
