package handlers

import (
	"net/http"

	"github.com/cinascorp/Peyda/internal/constants"
)

// Version answers with the running version.
func Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": constants.Version}, "")
}
