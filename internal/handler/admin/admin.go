// Package admin holds the HTTP handlers behind /api/admin.
package admin

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/handler"
)

var errBadBody = domain.ErrValidation("invalid request body")

// twoIDs parses {id} and a second UUID path parameter.
func twoIDs(r *http.Request, second string) (uuid.UUID, uuid.UUID, error) {
	id, err := handler.URLParamUUID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	other, err := handler.URLParamUUID(r, second)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return id, other, nil
}
