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

package reconcile

import (
	"bytes"
	stdcontext "context"
	"strings"
	"testing"

	"github.com/tillsync/tillsync/pkg/assert"
	"github.com/tillsync/tillsync/pkg/cli/context"
)

func execute(ctx context.Ctx, args ...string) (string, error) {
	var out bytes.Buffer

	cmd := NewCmd(ctx)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()

	return out.String(), err
}

func TestReconcileCmd(t *testing.T) {
	ctx := context.InitTestCtx(t, "http://127.0.0.1:0")

	t.Run("get unknown", func(t *testing.T) {
		if _, err := execute(ctx, "get", "order-1"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("set", func(t *testing.T) {
		_, err := execute(ctx, "set", "order-1", "srv-1")
		assert.NoError(t, err, "executing")

		serverID, ok, err := ctx.Reconcile.Get(stdcontext.Background(), "order-1")
		assert.NoError(t, err, "getting")
		assert.Equal(t, ok, true, "mapping missing")
		assert.Equal(t, serverID, "srv-1", "server id mismatch")
	})

	t.Run("get", func(t *testing.T) {
		out, err := execute(ctx, "get", "order-1")
		assert.NoError(t, err, "executing")
		assert.Equal(t, strings.TrimSpace(out), "srv-1", "output mismatch")
	})

	t.Run("ls", func(t *testing.T) {
		_, err := execute(ctx, "set", "order-2", "srv-2")
		assert.NoError(t, err, "executing")

		out, err := execute(ctx, "ls")
		assert.NoError(t, err, "executing")

		for _, s := range []string{"order-1", "srv-1", "order-2", "srv-2"} {
			if !strings.Contains(out, s) {
				t.Errorf("%s missing from output:\n%s", s, out)
			}
		}
	})

	t.Run("set with empty id", func(t *testing.T) {
		if _, err := execute(ctx, "set", "", "srv-3"); err == nil {
			t.Fatal("expected an error")
		}
	})
}
