package middleware

import (
	"net/http"

	"github.com/lovemage/3c-morty-sub000/internal/httputil"
)

func respondError(w http.ResponseWriter, status int, code, message string) {
	httputil.RespondError(w, status, code, message)
}
