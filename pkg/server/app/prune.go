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
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/server/database"
)

// PruneAppliedOps forgets operations applied more than retention ago and returns how
// many were deleted. A terminal resending a pruned operation gets it applied again,
// so retention must exceed the longest expected offline period.
func (a *App) PruneAppliedOps(retention time.Duration) (int64, error) {
	cutoff := a.Clock.Now().Add(-retention).UnixNano()

	res := a.DB.Where("applied_at < ?", cutoff).Delete(&database.AppliedOp{})
	if err := res.Error; err != nil {
		return 0, errors.Wrap(err, "deleting applied operations")
	}

	return res.RowsAffected, nil
}
