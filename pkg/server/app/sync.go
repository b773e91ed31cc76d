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

package app

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/server/database"
	"gorm.io/gorm"
)

// Diagnostics of rejected operations
const (
	MsgMissingOpID    = "missing clientOpId"
	MsgUnknownType    = "unknown operation type"
	MsgMissingEntity  = "missing entity id"
	MsgUnknownEntity  = "unknown entity"
	MsgInvalidPayload = "invalid payload"
)

// Order statuses
const (
	StatusOpen   = "OPEN"
	StatusVoided = "VOIDED"
	StatusClosed = "CLOSED"
)

const entityTypeOrder = "ORDER"

// orderRef is the part of every operation payload that names the order
type orderRef struct {
	OrderID string `json:"orderId"`
}

// entityID returns the client id of the order the operation is about
func entityID(o op.Operation) (string, bool) {
	if o.ClientEntityID != "" {
		return o.ClientEntityID, true
	}

	var ref orderRef
	if err := json.Unmarshal(o.Payload, &ref); err != nil {
		return "", false
	}

	return ref.OrderID, true
}

func rejected(msg string) client.ResultItem {
	return client.ResultItem{Status: client.StatusError, Message: msg}
}

// ApplyBatch applies the operations in order and returns one result per operation.
// Each operation commits on its own so that a rejected operation does not undo the
// ones before it. The error is non-nil only if the database fails.
func (a *App) ApplyBatch(orgID string, ops []op.Operation) ([]client.ResultItem, error) {
	ret := make([]client.ResultItem, 0, len(ops))

	for _, o := range ops {
		res, err := a.applyOp(orgID, o)
		if err != nil {
			return nil, errors.Wrapf(err, "applying operation %s", o.ClientOpID)
		}

		ret = append(ret, res)
	}

	return ret, nil
}

func (a *App) applyOp(orgID string, o op.Operation) (client.ResultItem, error) {
	if o.ClientOpID == "" {
		return rejected(MsgMissingOpID), nil
	}

	var ret client.ResultItem

	err := a.DB.Transaction(func(tx *gorm.DB) error {
		var existing database.AppliedOp
		err := tx.Where("org_id = ? AND client_op_id = ?", orgID, o.ClientOpID).First(&existing).Error
		if err == nil {
			ret = client.ResultItem{Status: client.StatusSkip, ServerID: existing.ServerID}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "finding applied operation")
		}

		if !o.Type.Valid() {
			ret = rejected(MsgUnknownType)
			return nil
		}
		if !json.Valid(o.Payload) {
			ret = rejected(MsgInvalidPayload)
			return nil
		}

		serverID, msg, err := a.applyEffect(tx, orgID, o)
		if err != nil {
			return err
		}
		if msg != "" {
			ret = rejected(msg)
			return nil
		}

		applied := database.AppliedOp{
			OrgID:      orgID,
			ClientOpID: o.ClientOpID,
			Type:       string(o.Type),
			ServerID:   serverID,
			AppliedAt:  a.Clock.Now().UnixNano(),
		}
		if err := tx.Create(&applied).Error; err != nil {
			return errors.Wrap(err, "recording applied operation")
		}

		ret = client.ResultItem{Status: client.StatusOK, ServerID: serverID}
		return nil
	})
	if err != nil {
		return client.ResultItem{}, err
	}

	log.WithFields(log.Fields{
		"org_id":       orgID,
		"client_op_id": o.ClientOpID,
		"type":         string(o.Type),
		"status":       string(ret.Status),
	}).Debug("operation processed")

	return ret, nil
}

// applyEffect changes the entities the operation is about. It returns the server id of
// the entity, or a diagnostic if the operation cannot be applied yet.
func (a *App) applyEffect(tx *gorm.DB, orgID string, o op.Operation) (string, string, error) {
	clientID, ok := entityID(o)
	if !ok {
		return "", MsgInvalidPayload, nil
	}
	if clientID == "" {
		return "", MsgMissingEntity, nil
	}

	var entity database.Entity
	err := tx.Where("org_id = ? AND client_id = ?", orgID, clientID).First(&entity).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", errors.Wrap(err, "finding entity")
	}

	if o.Type == op.TypeCreateOrder {
		if found {
			return entity.ServerID, "", nil
		}

		entity = database.Entity{
			OrgID:    orgID,
			ClientID: clientID,
			ServerID: uuid.NewString(),
			Type:     entityTypeOrder,
			Status:   StatusOpen,
		}
		if err := tx.Create(&entity).Error; err != nil {
			return "", "", errors.Wrap(err, "creating entity")
		}

		return entity.ServerID, "", nil
	}

	if !found {
		return "", MsgUnknownEntity, nil
	}

	var status string
	switch o.Type {
	case op.TypeVoidOrder:
		status = StatusVoided
	case op.TypeCloseOrder:
		status = StatusClosed
	}
	if status != "" && status != entity.Status {
		if err := tx.Model(&entity).Update("status", status).Error; err != nil {
			return "", "", errors.Wrap(err, "updating entity status")
		}
	}

	return entity.ServerID, "", nil
}
