package feed

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError é uma resposta não-2xx do fornecedor
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// canFallback indica falhas de credencial, servidor ou transporte, que usam o snapshot
func canFallback(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		// erro de transporte (timeout, conexão recusada)
		return true
	}
	return se.Code >= 500 || se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
}
