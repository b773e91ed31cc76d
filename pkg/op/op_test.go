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
	"testing"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/assert"
	"github.com/tillsync/tillsync/pkg/clock"
)

func TestParseType(t *testing.T) {
	testCases := []struct {
		input    string
		expected Type
		valid    bool
	}{
		{"CREATE_ORDER", TypeCreateOrder, true},
		{"ADD_ITEM", TypeAddItem, true},
		{"APPLY_DISCOUNT", TypeApplyDiscount, true},
		{"SEND_TO_KITCHEN", TypeSendToKitchen, true},
		{"VOID_ORDER", TypeVoidOrder, true},
		{"CLOSE_ORDER", TypeCloseOrder, true},
		{"ADD_PAYMENT", TypeAddPayment, true},
		{"add_payment", "", false},
		{"REFUND", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseType(tc.input)
			if tc.valid {
				assert.NoError(t, err, "parsing type")
			} else {
				assert.Equal(t, errors.Cause(err), ErrUnknownType, "error mismatch")
			}
			assert.Equal(t, got, tc.expected, "type mismatch")
		})
	}
}

func TestNew(t *testing.T) {
	c := clock.NewMock()

	t.Run("stamps time and id", func(t *testing.T) {
		o, err := New(c, TypeCloseOrder, []byte(`{"orderId":"order-1"}`), "order-1")
		assert.NoError(t, err, "building operation")

		assert.NotEqual(t, o.ClientOpID, "", "id is empty")
		assert.Equal(t, o.EnqueuedAt.Equal(c.Now()), true, "enqueuedAt mismatch")
		assert.Equal(t, o.ClientEntityID, "order-1", "entity id mismatch")
		assert.Equal(t, string(o.Payload), `{"orderId":"order-1"}`, "payload mismatch")
	})

	t.Run("empty payload", func(t *testing.T) {
		o, err := New(c, TypeSendToKitchen, nil, "")
		assert.NoError(t, err, "building operation")
		assert.Equal(t, string(o.Payload), "{}", "payload mismatch")
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := New(c, TypeAddItem, []byte(`{"orderId":`), "")
		assert.Equal(t, err, ErrInvalidPayload, "error mismatch")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(c, Type("REFUND"), nil, "")
		assert.Equal(t, errors.Cause(err), ErrUnknownType, "error mismatch")
	})
}

func TestNewIDIsSortable(t *testing.T) {
	var prev string
	for i := 0; i < 50; i++ {
		id, err := NewID()
		assert.NoError(t, err, "generating id")

		if prev != "" && id <= prev {
			t.Fatalf("ids are not increasing: %s then %s", prev, id)
		}
		prev = id
	}
}

func TestBuild(t *testing.T) {
	c := clock.NewMock()

	o, err := Build(c, AddPayment{OrderID: "order-7", Method: "CARD", Amount: 42.5})
	assert.NoError(t, err, "building operation")

	assert.Equal(t, o.Type, TypeAddPayment, "type mismatch")
	assert.Equal(t, o.ClientEntityID, "order-7", "entity id mismatch")

	var decoded AddPayment
	if err := json.Unmarshal(o.Payload, &decoded); err != nil {
		t.Fatal(errors.Wrap(err, "decoding payload"))
	}
	assert.DeepEqual(t, decoded, AddPayment{OrderID: "order-7", Method: "CARD", Amount: 42.5}, "payload mismatch")
}

func TestOperationWireFormat(t *testing.T) {
	c := clock.NewMock()
	o, err := New(c, TypeCreateOrder, []byte(`{"orderId":"order-1"}`), "order-1")
	assert.NoError(t, err, "building operation")
	o.Attempts = 3
	o.LastError = "boom"

	b, err := json.Marshal(o)
	assert.NoError(t, err, "marshalling")

	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(errors.Wrap(err, "unmarshalling"))
	}

	for _, key := range []string{"clientOpId", "type", "payload", "clientEntityId", "enqueuedAt"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %s in %s", key, string(b))
		}
	}
	if _, ok := got["Attempts"]; ok {
		t.Errorf("local bookkeeping leaked into the wire format: %s", string(b))
	}
}

func TestIDs(t *testing.T) {
	ops := []Operation{{ClientOpID: "a"}, {ClientOpID: "b"}}
	assert.DeepEqual(t, IDs(ops), []string{"a", "b"}, "ids mismatch")
}
