package middleware

import (
	"net/http"

	"github.com/naman3006/E-commerce-sub001/pkg/httputil"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	httputil.WriteJSON(w, status, httputil.Response{
		Error: &httputil.ErrorResponse{Code: code, Message: message},
	})
}
