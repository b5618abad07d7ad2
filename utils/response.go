package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"checkout-3ds-api/models"
)

func SendErrorResponse(w http.ResponseWriter, status int, message string) {
	SendJSON(w, status, models.APIResponse{
		Status:  "error",
		Message: message,
	})
}

func SendSuccessResponse(w http.ResponseWriter, response models.APIResponse) {
	SendJSON(w, http.StatusOK, response)
}

// SendJSON writes any value as a JSON body.
func SendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
