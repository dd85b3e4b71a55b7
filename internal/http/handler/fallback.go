package handler

import (
	"net/http"

	"github.com/sandeepkv93/product-catalog-api/internal/http/response"
)

func NotFound(w http.ResponseWriter, r *http.Request) {
	response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "Cannot "+r.Method+" "+r.URL.Path, nil)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Cannot "+r.Method+" "+r.URL.Path, nil)
}
