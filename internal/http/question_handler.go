package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hivemind/internal/domain/hivemind"
	"hivemind/internal/platform/apperr"
)

type createQuestionRequest struct {
	Text          string         `json:"text"`
	Description   string         `json:"description"`
	Tags          string         `json:"tags"`
	AnswerType    string         `json:"answer_type"`
	ConsensusMode string         `json:"consensus_mode"`
	Constraints   map[string]any `json:"constraints"`
}

type setWeightRequest struct {
	Weight *float64 `json:"weight"`
}

type headResponse struct {
	Head string `json:"head"`
}

// @Summary     Create a question
// @Tags        questions
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       request  body      createQuestionRequest  true  "Question"
// @Success     201      {object}  questionResponse
// @Failure     400      {object}  map[string]string  "invalid question"
// @Failure     401      {object}  map[string]string  "unauthorized"
// @Failure     403      {object}  map[string]string  "forbidden"
// @Router      /api/v1/questions [post]
func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	in := hivemind.QuestionInput{
		Text:        req.Text,
		Description: req.Description,
		Tags:        req.Tags,
	}
	if req.AnswerType != "" {
		t, err := hivemind.ParseAnswerType(req.AnswerType)
		if err != nil {
			errorResponse(w, err)
			return
		}
		in.AnswerType = t
	}
	if req.ConsensusMode != "" {
		m, err := hivemind.ParseConsensusMode(req.ConsensusMode)
		if err != nil {
			errorResponse(w, err)
			return
		}
		in.ConsensusMode = m
	}
	if req.Constraints != nil {
		in.Constraints, _ = jsonValue(req.Constraints).(map[string]any)
	}

	qid, head, err := h.hiveSvc.CreateQuestion(r.Context(), in)
	if err != nil {
		errorResponse(w, err)
		return
	}
	q, err := h.hiveSvc.Question(r.Context(), qid)
	if err != nil {
		errorResponse(w, err)
		return
	}

	slogLogger.Info("question created", "question", qid.String(), "by", subjectFromCtx(r))
	writeJSON(w, http.StatusCreated, toQuestionResponse(qid, head, q))
}

// @Summary     Get a question
// @Tags        questions
// @Produce     json
// @Param       id   path      string  true  "Question CID"
// @Success     200  {object}  questionResponse
// @Failure     400  {object}  map[string]string  "invalid id"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/questions/{id} [get]
func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	q, err := h.hiveSvc.Question(r.Context(), qid)
	if err != nil {
		errorResponse(w, err)
		return
	}
	st, err := h.hiveSvc.State(r.Context(), qid)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuestionResponse(qid, st.ID(), q))
}

// @Summary     Current state of a question
// @Tags        questions
// @Produce     json
// @Param       id   path      string  true  "Question CID"
// @Success     200  {object}  stateResponse
// @Failure     400  {object}  map[string]string  "invalid id"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/questions/{id}/state [get]
func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	st, err := h.hiveSvc.State(r.Context(), qid)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStateResponse(st))
}

// @Summary     Consensus of a question
// @Description Single mode returns one value or null on a tie; ranked mode returns all values by score.
// @Tags        questions
// @Produce     json
// @Param       id   path      string  true  "Question CID"
// @Success     200  {object}  consensusResponse
// @Failure     400  {object}  map[string]string  "invalid id"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/questions/{id}/consensus [get]
func (h *Handler) handleConsensus(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	view, err := h.hiveSvc.Consensus(r.Context(), qid)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toConsensusResponse(view))
}

// @Summary     Change log of a question
// @Tags        questions
// @Produce     json
// @Param       id     path      string  true   "Question CID"
// @Param       depth  query     int     false  "Maximum number of snapshots, 0 for all"
// @Success     200    {array}   changeResponse
// @Failure     400    {object}  map[string]string  "invalid id or depth"
// @Failure     404    {object}  map[string]string  "not found"
// @Router      /api/v1/questions/{id}/changelog [get]
func (h *Handler) handleChangeLog(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errorResponse(w, apperr.BadRequest("invalid_input", "depth must be a non-negative integer", err))
			return
		}
		depth = n
	}

	changes, err := h.hiveSvc.ChangeLog(r.Context(), qid, depth)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChangeResponses(changes))
}

// @Summary     Set an opinionator's weight
// @Tags        questions
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       id           path      string            true  "Question CID"
// @Param       opinionator  path      string            true  "Opinionator"
// @Param       request      body      setWeightRequest  true  "Weight"
// @Success     200          {object}  headResponse
// @Failure     400          {object}  map[string]string  "invalid weight"
// @Failure     401          {object}  map[string]string  "unauthorized"
// @Failure     404          {object}  map[string]string  "not found"
// @Router      /api/v1/questions/{id}/weights/{opinionator} [put]
func (h *Handler) handleSetWeight(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	var req setWeightRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}
	if req.Weight == nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "weight is required", nil))
		return
	}

	opinionator := chi.URLParam(r, "opinionator")
	head, err := h.hiveSvc.SetWeight(r.Context(), qid, opinionator, *req.Weight)
	if err != nil {
		errorResponse(w, err)
		return
	}
	h.notify(qid)

	slogLogger.Info("weight set", "question", qid.String(), "opinionator", opinionator, "weight", *req.Weight, "by", subjectFromCtx(r))
	writeJSON(w, http.StatusOK, headResponse{Head: head.String()})
}

// @Summary     Recalculate results
// @Tags        questions
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Question CID"
// @Success     200  {object}  headResponse
// @Failure     400  {object}  map[string]string  "invalid id"
// @Failure     401  {object}  map[string]string  "unauthorized"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/questions/{id}/results [post]
func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	qid, ok := h.questionID(w, r)
	if !ok {
		return
	}

	head, err := h.hiveSvc.Recalculate(r.Context(), qid)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, headResponse{Head: head.String()})
}

// @Summary     Raw content
// @Description Canonical CBOR bytes of any stored record, for independent verification.
// @Tags        content
// @Produce     application/cbor
// @Param       cid  path  string  true  "Content id"
// @Success     200
// @Failure     400  {object}  map[string]string  "invalid id"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/content/{cid} [get]
func (h *Handler) handleContent(w http.ResponseWriter, r *http.Request) {
	id, err := parseCIDParam(r, "cid")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid content id", err))
		return
	}

	data, err := h.hiveSvc.Content(r.Context(), id)
	if err != nil {
		errorResponse(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+id.String()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
