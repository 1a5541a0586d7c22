package httpx

import (
	"net/http"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	apperrors "github.com/datamed/datamed-api/internal/errors"
)

type uploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ValidateUploadHandler answers a preflight check for a prescription document.
// The file itself has already passed ValidateUpload.
// POST /uploads/validate.
func ValidateUploadHandler(w http.ResponseWriter, r *http.Request, _ domainauth.Identity) {
	file, header, err := r.FormFile(UploadField)
	if err != nil {
		WriteAppError(w, apperrors.ValidationField(UploadField, "No file provided"))
		return
	}
	_ = file.Close()
	WriteJSON(w, http.StatusOK, uploadResponse{Filename: header.Filename, Size: header.Size})
}
