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

package ml_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/ml"
)

func TestRateLimitedPredictor_DelegatesWithinBurst(t *testing.T) {
	g := NewWithT(t)
	inner := fakePredictor{pred: ml.Prediction{Score: 42, Confidence: 0.8}}
	p := ml.NewRateLimitedPredictor(inner, 100, 5)

	pred, err := p.Predict(context.Background(), ml.FeatureVector{})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(pred.Score).To(Equal(42.0))
}

func TestRateLimitedPredictor_CancelledContextAborts(t *testing.T) {
	g := NewWithT(t)
	inner := fakePredictor{pred: ml.Prediction{Score: 42, Confidence: 0.8}}
	p := ml.NewRateLimitedPredictor(inner, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	_, err := p.Predict(ctx, ml.FeatureVector{})
	g.Expect(err).To(HaveOccurred())
}
