/* Copyright 2025 Tillsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package op defines the operations a terminal records while taking orders.
// The sync engine treats an operation as a type tag plus an opaque JSON payload.
package op

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/clock"
)

// Type is the kind of a queued operation
type Type string

// Operation types. The set is closed.
const (
	TypeCreateOrder   Type = "CREATE_ORDER"
	TypeAddItem       Type = "ADD_ITEM"
	TypeApplyDiscount Type = "APPLY_DISCOUNT"
	TypeSendToKitchen Type = "SEND_TO_KITCHEN"
	TypeVoidOrder     Type = "VOID_ORDER"
	TypeCloseOrder    Type = "CLOSE_ORDER"
	TypeAddPayment    Type = "ADD_PAYMENT"
)

// Types lists every operation type
var Types = []Type{
	TypeCreateOrder,
	TypeAddItem,
	TypeApplyDiscount,
	TypeSendToKitchen,
	TypeVoidOrder,
	TypeCloseOrder,
	TypeAddPayment,
}

var (
	// ErrUnknownType is returned for a type outside the closed set
	ErrUnknownType = errors.New("unknown operation type")
	// ErrInvalidPayload is returned when a payload is not a JSON document
	ErrInvalidPayload = errors.New("payload is not valid JSON")
)

// Valid reports whether t is one of the known operation types
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}

	return false
}

// ParseType parses the given string into a Type
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", errors.Wrapf(ErrUnknownType, "'%s'", s)
	}

	return t, nil
}

// Operation is a user action recorded on the terminal, pending delivery to the server
type Operation struct {
	ClientOpID     string          `json:"clientOpId"`
	Type           Type            `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	ClientEntityID string          `json:"clientEntityId,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`

	// Attempts and LastError are local bookkeeping and never leave the terminal
	Attempts  int    `json:"-"`
	LastError string `json:"-"`
}

// NewID returns a new globally unique, time-sortable operation id
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generating operation id")
	}

	return id.String(), nil
}

// New constructs an operation of the given type with a raw JSON payload
func New(c clock.Clock, t Type, payload []byte, clientEntityID string) (Operation, error) {
	if !t.Valid() {
		return Operation{}, errors.Wrapf(ErrUnknownType, "'%s'", t)
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return Operation{}, ErrInvalidPayload
	}

	id, err := NewID()
	if err != nil {
		return Operation{}, err
	}

	return Operation{
		ClientOpID:     id,
		Type:           t,
		Payload:        json.RawMessage(payload),
		ClientEntityID: clientEntityID,
		EnqueuedAt:     c.Now().UTC(),
	}, nil
}

// IDs returns the client operation ids of the given operations
func IDs(ops []Operation) []string {
	ret := make([]string, len(ops))
	for i, o := range ops {
		ret[i] = o.ClientOpID
	}

	return ret
}
