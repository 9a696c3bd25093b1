package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wedding-ops/internal/models"
)

var statusByKind = map[string]int{
	"not_found":    http.StatusNotFound,
	"unauthorized": http.StatusForbidden,
	"validation":   http.StatusBadRequest,
	"not_coming":   http.StatusConflict,
	"declined":     http.StatusConflict,
	"table_full":   http.StatusConflict,
	"invalid_seat": http.StatusUnprocessableEntity,
}

// writeError renders err with a status derived from its kind
func writeError(c *gin.Context, err error) {
	kind := models.ErrorKind(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := gin.H{"message": err.Error(), "kind": kind}
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		body["fields"] = vErr.FieldErrors
	}
	if status == http.StatusInternalServerError {
		body["message"] = "internal error"
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "kind": "validation"})
}
