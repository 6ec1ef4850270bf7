package api

import (
	"net/http"

	"github.com/leafsii/dsc-ledger/internal/engine"
)

// statusFor maps an engine error kind to an HTTP status and an error code.
func statusFor(err error) (int, string) {
	switch engine.KindOf(err) {
	case engine.KindInput:
		return http.StatusBadRequest, "INVALID_INPUT"
	case engine.KindState:
		return http.StatusConflict, "INSUFFICIENT_BALANCE"
	case engine.KindSolvency:
		return http.StatusUnprocessableEntity, "HEALTH_FACTOR"
	case engine.KindOracle:
		return http.StatusServiceUnavailable, "ORACLE_UNAVAILABLE"
	case engine.KindCollaborator:
		return http.StatusBadGateway, "COLLABORATOR_FAILED"
	case engine.KindReentrancy:
		return http.StatusConflict, "REENTRANT_CALL"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
