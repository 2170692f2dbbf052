package api

import (
	"net/http"

	"github.com/ipfs/go-cid"

	"hivemind/internal/domain/hivemind"
	"hivemind/internal/platform/apperr"
	"hivemind/internal/platform/cas"
)

type proposeOptionRequest struct {
	Value any `json:"value"`
}

type proposeOptionResponse struct {
	Option string `json:"option"`
	Head   string `json:"head"`
}

type opinionRequest struct {
	// State pins the ballot to a snapshot; the current head when empty.
	State        string   `json:"state,omitempty"`
	Opinionator  string   `json:"opinionator"`
	RankedChoice []string `json:"ranked_choice"`
	Signature    string   `json:"signature,omitempty"`
}

type opinionMessageResponse struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

type submitOpinionResponse struct {
	Opinion string `json:"opinion"`
	Head    string `json:"head"`
}

func (req opinionRequest) input() (hivemind.OpinionInput, error) {
	in := hivemind.OpinionInput{
		Opinionator: req.Opinionator,
		Signature:   req.Signature,
	}
	if req.State != "" {
		id, err := cas.Parse(req.State)
		if err != nil {
			return in, err
		}
		in.State = id
	}
	in.RankedChoice = make([]cid.Cid, 0, len(req.RankedChoice))
	for _, s := range req.RankedChoice {
		id, err := cas.Parse(s)
		if err != nil {
			return in, err
		}
		in.RankedChoice = append(in.RankedChoice, id)
	}
	return in, nil
}

// @Summary     Propose an option
// @Tags        options
// @Accept      json
// @Produce     json
// @Param       id       path      string                true  "Question CID"
// @Param       request  body      proposeOptionRequest  true  "Option value"
// @Success     201      {object}  proposeOptionResponse
// @Failure     400      {object}  map[string]string  "invalid option"
// @Failure     404      {object}  map[string]string  "not found"
// @Failure     429      {object}  map[string]string  "rate limited"
// @Router      /api/v1/questions/{id}/options [post]
func (h *Handler) handleProposeOption(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	var req proposeOptionRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}
	if req.Value == nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "value is required", nil))
		return
	}

	oid, head, err := h.hiveSvc.ProposeOption(r.Context(), qid, jsonValue(req.Value))
	if err != nil {
		errorResponse(w, err)
		return
	}
	h.notify(qid)

	writeJSON(w, http.StatusCreated, proposeOptionResponse{Option: oid.String(), Head: head.String()})
}

// @Summary     Message to sign for an opinion
// @Description Returns the opinion id the opinionator must sign, and the state the ballot is bound to.
// @Tags        opinions
// @Accept      json
// @Produce     json
// @Param       id       path      string          true  "Question CID"
// @Param       request  body      opinionRequest  true  "Ballot"
// @Success     200      {object}  opinionMessageResponse
// @Failure     400      {object}  map[string]string  "invalid ballot"
// @Failure     404      {object}  map[string]string  "not found"
// @Router      /api/v1/questions/{id}/opinions/message [post]
func (h *Handler) handleOpinionMessage(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	in, ok := decodeOpinion(w, r)
	if !ok {
		return
	}

	stateID, msg, err := h.hiveSvc.OpinionMessage(r.Context(), qid, in)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, opinionMessageResponse{State: stateID.String(), Message: msg})
}

// @Summary     Submit an opinion
// @Tags        opinions
// @Accept      json
// @Produce     json
// @Param       id       path      string          true  "Question CID"
// @Param       request  body      opinionRequest  true  "Signed ballot"
// @Success     201      {object}  submitOpinionResponse
// @Failure     400      {object}  map[string]string  "invalid ballot"
// @Failure     401      {object}  map[string]string  "invalid signature"
// @Failure     404      {object}  map[string]string  "not found"
// @Failure     429      {object}  map[string]string  "rate limited"
// @Router      /api/v1/questions/{id}/opinions [post]
func (h *Handler) handleSubmitOpinion(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	in, ok := decodeOpinion(w, r)
	if !ok {
		return
	}

	opID, head, err := h.hiveSvc.SubmitOpinion(r.Context(), qid, in)
	if err != nil {
		errorResponse(w, err)
		return
	}
	h.notify(qid)

	writeJSON(w, http.StatusCreated, submitOpinionResponse{Opinion: opID.String(), Head: head.String()})
}

func decodeOpinion(w http.ResponseWriter, r *http.Request) (hivemind.OpinionInput, bool) {
	var req opinionRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return hivemind.OpinionInput{}, false
	}
	in, err := req.input()
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid content id in ballot", err))
		return hivemind.OpinionInput{}, false
	}
	return in, true
}
