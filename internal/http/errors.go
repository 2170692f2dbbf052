package api

import (
	"errors"
	"net/http"

	"hivemind/internal/domain/hivemind"
	"hivemind/internal/domain/user"
	"hivemind/internal/platform/apperr"
	"hivemind/internal/platform/cas"
)

func errorResponse(w http.ResponseWriter, err error) {
	appErr := mapError(err)
	if appErr.StatusCode() >= http.StatusInternalServerError {
		slogLogger.Error("request failed", "code", appErr.Code, "err", err)
	}
	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func mapError(err error) *apperr.AppError {
	if err == nil {
		return apperr.Internal("internal_error", "internal server error", nil)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, cas.ErrStoreUnavailable):
		return apperr.ServiceUnavailable("store_unavailable", "content store unavailable", err)
	case errors.Is(err, user.ErrInvalidCredentials):
		return apperr.Unauthorized("invalid_credentials", "invalid credentials", err)
	case errors.Is(err, hivemind.ErrInvalidSignature):
		return apperr.Unauthorized("invalid_signature", "signature does not match opinionator", err)
	case errors.Is(err, hivemind.ErrQuestionNotFound):
		return apperr.NotFound("question_not_found", "question not found", err)
	case errors.Is(err, cas.ErrContentNotFound), errors.Is(err, cas.ErrRefNotFound):
		return apperr.NotFound("not_found", "content not found", err)
	case errors.Is(err, hivemind.ErrUnknownAnswerType):
		return apperr.BadRequest("unknown_answer_type", err.Error(), err)
	case errors.Is(err, hivemind.ErrUnknownConsensusMode):
		return apperr.BadRequest("unknown_consensus_mode", err.Error(), err)
	case errors.Is(err, hivemind.ErrConfiguration):
		return apperr.BadRequest("invalid_configuration", err.Error(), err)
	case errors.Is(err, hivemind.ErrInvalidOption):
		return apperr.BadRequest("invalid_option", err.Error(), err)
	case errors.Is(err, hivemind.ErrInvalidOpinion):
		return apperr.BadRequest("invalid_opinion", err.Error(), err)
	default:
		return apperr.Internal("internal_error", http.StatusText(http.StatusInternalServerError), err)
	}
}
