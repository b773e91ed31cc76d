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

package op

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/clock"
)

// Payload is implemented by the typed bodies of each operation type. It is the only
// place where operation bodies have a schema; below Build they are opaque bytes.
type Payload interface {
	OpType() Type
	// EntityID is the client-generated id of the entity the operation is about
	EntityID() string
}

// CreateOrder opens a new order. OrderID is generated on the terminal.
type CreateOrder struct {
	OrderID     string `json:"orderId"`
	TableID     string `json:"tableId,omitempty"`
	ServiceType string `json:"serviceType,omitempty"`
	Covers      int    `json:"covers,omitempty"`
}

// AddItem adds a menu item to an order
type AddItem struct {
	OrderID    string   `json:"orderId"`
	MenuItemID string   `json:"menuItemId"`
	Quantity   int      `json:"quantity"`
	Modifiers  []string `json:"modifiers,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// Discount kinds
const (
	DiscountPercent = "PERCENT"
	DiscountAmount  = "AMOUNT"
)

// ApplyDiscount applies a discount to an order
type ApplyDiscount struct {
	OrderID string  `json:"orderId"`
	Kind    string  `json:"kind"`
	Value   float64 `json:"value"`
	Reason  string  `json:"reason,omitempty"`
}

// SendToKitchen fires the pending items of an order to the kitchen
type SendToKitchen struct {
	OrderID string `json:"orderId"`
	Station string `json:"station,omitempty"`
}

// VoidOrder voids an order
type VoidOrder struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// CloseOrder closes a settled order
type CloseOrder struct {
	OrderID string `json:"orderId"`
}

// AddPayment records a tender against an order
type AddPayment struct {
	OrderID   string  `json:"orderId"`
	Method    string  `json:"method"`
	Amount    float64 `json:"amount"`
	Tip       float64 `json:"tip,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

func (p CreateOrder) OpType() Type   { return TypeCreateOrder }
func (p AddItem) OpType() Type       { return TypeAddItem }
func (p ApplyDiscount) OpType() Type { return TypeApplyDiscount }
func (p SendToKitchen) OpType() Type { return TypeSendToKitchen }
func (p VoidOrder) OpType() Type     { return TypeVoidOrder }
func (p CloseOrder) OpType() Type    { return TypeCloseOrder }
func (p AddPayment) OpType() Type    { return TypeAddPayment }

func (p CreateOrder) EntityID() string   { return p.OrderID }
func (p AddItem) EntityID() string       { return p.OrderID }
func (p ApplyDiscount) EntityID() string { return p.OrderID }
func (p SendToKitchen) EntityID() string { return p.OrderID }
func (p VoidOrder) EntityID() string     { return p.OrderID }
func (p CloseOrder) EntityID() string    { return p.OrderID }
func (p AddPayment) EntityID() string    { return p.OrderID }

// Build encodes a typed payload into an operation stamped with the clock's current time
func Build(c clock.Clock, p Payload) (Operation, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Operation{}, errors.Wrapf(err, "marshalling %s payload", p.OpType())
	}

	return New(c, p.OpType(), b, p.EntityID())
}
