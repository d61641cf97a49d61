/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/scheduler"
)

type countingExpirer struct {
	calls int64
}

func (c *countingExpirer) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	atomic.AddInt64(&c.calls, 1)
	return 0, nil
}

func TestSweeper_TicksUntilStopped(t *testing.T) {
	g := NewWithT(t)
	expirer := &countingExpirer{}
	s := scheduler.New(expirer, 10*time.Millisecond)

	ctx := context.Background()
	go s.Run(ctx)
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	g.Expect(atomic.LoadInt64(&expirer.calls)).To(BeNumerically(">=", 3))
}
