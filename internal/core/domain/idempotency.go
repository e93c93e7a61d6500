package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog stores the result of a keyed request so retries replay it.
type IdempotencyLog struct {
	Key           string    `json:"key"` // Format: "user_id:transfer:client_key"
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildTransferIdempotencyKey scopes a client-supplied key to its user.
func BuildTransferIdempotencyKey(userID uuid.UUID, clientKey string) string {
	return userID.String() + ":transfer:" + clientKey
}
