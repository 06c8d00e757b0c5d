package alpaca

import (
	"encoding/json"
	"net/http"
)

func handleResponse(w http.ResponseWriter, r *http.Request, value any) {
	response := baseResponse{
		ServerTransactionID: int(txCounter.Add(1)),
		ClientTransactionID: getClientTxID(requestParams(r)),
	}
	if value != nil {
		response.Value = value
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func handleError(w http.ResponseWriter, r *http.Request, code int, message string) {
	response := baseResponse{
		ServerTransactionID: int(txCounter.Add(1)),
		ClientTransactionID: getClientTxID(requestParams(r)),
		ErrorNumber:         code,
		ErrorMessage:        message,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
