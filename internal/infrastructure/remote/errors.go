package remote

import (
	"fmt"
	"net/http"

	"github.com/coletorapp/conferencia-movel/internal/domain"
)

// errorEnvelope corpo de erro padronizado do backend.
type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mapError traduz o par (status HTTP, código de erro) para a taxonomia de
// domínio. Este é o único ponto do código que conhece os códigos do backend:
// nenhuma camada acima compara texto de erro cru.
func mapError(status int, env errorEnvelope) error {
	switch env.Code {
	case "SESSION_IN_USE", "SESSION_CONFLICT", "ANOTHER_SESSION_OPEN":
		return fmt.Errorf("%w: %s", domain.ErrConflict, env.Message)
	case "SESSION_NOT_FOUND", "SESSION_FINALIZED", "ALREADY_FINALIZED":
		return fmt.Errorf("%w: %s", domain.ErrTerminalNotFound, env.Message)
	case "ITEM_LOCKED":
		return fmt.Errorf("%w: %s", domain.ErrLockConflict, env.Message)
	case "VALIDATION", "INVALID_REFERENCE", "INVALID_BARCODE":
		return fmt.Errorf("%w: %s", domain.ErrValidation, env.Message)
	case "UNAUTHORIZED", "TOKEN_EXPIRED":
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, env.Message)
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrValidation, env.Message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, env.Message)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, env.Message)
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: %s", domain.ErrTerminalNotFound, env.Message)
	default:
		return fmt.Errorf("%w: http %d: %s", domain.ErrTransient, status, env.Message)
	}
}
