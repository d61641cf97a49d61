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

package ml

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedPredictor wraps a Predictor with a token-bucket limit on the
// inference connection pool, so a bulk-match run fanning out across
// hundreds of candidates cannot overrun whatever QPS the model-serving
// endpoint was provisioned for.
type RateLimitedPredictor struct {
	Inner   Predictor
	Limiter *rate.Limiter
}

// NewRateLimitedPredictor builds a RateLimitedPredictor allowing qps
// requests per second with the given burst.
func NewRateLimitedPredictor(inner Predictor, qps float64, burst int) *RateLimitedPredictor {
	return &RateLimitedPredictor{Inner: inner, Limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

// Predict blocks until the limiter admits the call or ctx is cancelled,
// then delegates to Inner.
func (p *RateLimitedPredictor) Predict(ctx context.Context, features FeatureVector) (Prediction, error) {
	if err := p.Limiter.Wait(ctx); err != nil {
		return Prediction{}, err
	}
	return p.Inner.Predict(ctx, features)
}
