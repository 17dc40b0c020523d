/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "context"

type attemptContextKey struct{}

// AttemptContext carries the identity of one transaction attempt through
// context so backends can use it as an idempotency key without it being
// threaded through every engine signature.
type AttemptContext struct {
	AttemptId string // processor-assigned attempt id (uuid)
	Engine    string // engine kind executing the attempt
}

// WithAttemptContext attaches attempt data to a context.
func WithAttemptContext(ctx context.Context, ac *AttemptContext) context.Context {
	return context.WithValue(ctx, attemptContextKey{}, ac)
}

// GetAttemptContext retrieves attempt data from context, or nil if absent.
func GetAttemptContext(ctx context.Context) *AttemptContext {
	ac, _ := ctx.Value(attemptContextKey{}).(*AttemptContext)
	return ac
}
