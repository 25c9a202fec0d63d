package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/api/middleware"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
)

// staff returns the authenticated caller. Routes are mounted behind Auth,
// so a miss here means a wiring bug rather than a bad client.
func staff(r *http.Request) (uuid.UUID, enums.StaffRole, error) {
	id, role, ok := middleware.StaffFromContext(r.Context())
	if !ok {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	return id, role, nil
}
