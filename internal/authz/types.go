// ABOUTME: Authorization protocol types exchanged with the approval UI
// ABOUTME: Items, the combined request covering them, and the UI's response

package authz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Persistence names the storage keys an approval is saved under. When
// PersistData is set it is stored instead of the UI-supplied data.
type Persistence struct {
	StorageKeys []string        `json:"storageKeys"`
	PersistData json.RawMessage `json:"persistData,omitempty"`
}

// Item is one action awaiting authorization. Params carries the display
// data shown to the user.
type Item struct {
	ID          string          `json:"id"`
	AppID       string          `json:"appId"`
	Method      string          `json:"method"`
	Params      json.RawMessage `json:"params,omitempty"`
	Persistence *Persistence    `json:"persistence,omitempty"`
}

// Request is one UI prompt covering one or more items.
type Request struct {
	ID        string    `json:"id"`
	AppID     string    `json:"appId"`
	Items     []Item    `json:"items"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemResponse is the decision for a single item.
type ItemResponse struct {
	ID       string          `json:"id"`
	Approved bool            `json:"approved"`
	AppID    string          `json:"appId"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Response is the UI's decision for a Request.
type Response struct {
	ID            string                  `json:"id"`
	Approved      bool                    `json:"approved"`
	AppID         string                  `json:"appId"`
	ItemResponses map[string]ItemResponse `json:"itemResponses"`
}

var (
	// ErrDenied is returned when the user declines a request.
	ErrDenied = errors.New("authorization denied")
	// ErrTimeout is returned when the UI never answered a request.
	ErrTimeout = errors.New("authorization request timed out")
)

// StrictModeError is a denial issued without contacting the UI because the
// app runs in strict mode. It matches ErrDenied.
type StrictModeError struct {
	AppID   string
	Methods []string
}

func (e *StrictModeError) Error() string {
	return fmt.Sprintf("authorization denied: app %s is in strict mode and has no grant for %s",
		e.AppID, strings.Join(e.Methods, ", "))
}

// Is makes errors.Is(err, ErrDenied) true.
func (e *StrictModeError) Is(target error) bool {
	return target == ErrDenied
}
