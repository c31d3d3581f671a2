package types

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Delivery is the completed order as handed to the downstream system and as
// returned by the result endpoint.
type Delivery struct {
	OrderID      int             `json:"orderId"`
	UUID         uuid.UUID       `json:"uuid"`
	ResponseData json.RawMessage `json:"data"`
	Errors       *string         `json:"errors"`
	FileLinks    []string        `json:"fileLinks"`
}
