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

package database

import (
	"time"
)

// Model is the base model definition
type Model struct {
	ID        int       `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// AppliedOp records an operation the server has applied. The unique index on
// (org_id, client_op_id) is what makes a resent operation a no-op.
type AppliedOp struct {
	Model
	OrgID      string `gorm:"uniqueIndex:idx_applied_ops_org_op;type:text;not null"`
	ClientOpID string `gorm:"uniqueIndex:idx_applied_ops_org_op;type:text;not null"`
	Type       string `gorm:"type:text;not null"`
	ServerID   string `gorm:"type:text"`
	AppliedAt  int64  `gorm:"index;not null"`
}

// Entity maps a client-generated entity id to the id the server assigned to it
type Entity struct {
	Model
	OrgID    string `gorm:"uniqueIndex:idx_entities_org_client;type:text;not null"`
	ClientID string `gorm:"uniqueIndex:idx_entities_org_client;type:text;not null"`
	ServerID string `gorm:"uniqueIndex;type:text;not null"`
	Type     string `gorm:"type:text"`
	// Status is the lifecycle state of the entity, e.g. OPEN, VOIDED, CLOSED
	Status string `gorm:"type:text"`
}
