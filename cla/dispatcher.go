//
// Copyright 2021-present Sonatype Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package cla

import (
	"context"
	"errors"
	"fmt"

	"github.com/sonatype-nexus-community/clam/types"
	"go.uber.org/zap"
	webhook "gopkg.in/go-playground/webhooks.v5/github"
)

// ErrMalformedEvent is returned for pull_request payloads missing a routing key.
var ErrMalformedEvent = errors.New("malformed pull_request event")

type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeProcessed Outcome = "processed"
)

var qualifyingActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// PullRequestEvent carries the routing keys of a pull_request delivery.
type PullRequestEvent struct {
	Action string
	Repo   types.Repo
	Number int
	Sha    string
}

// ParsePullRequestEvent extracts the routing keys, failing on the first one that is missing.
func ParsePullRequestEvent(payload webhook.PullRequestPayload) (event PullRequestEvent, err error) {
	event.Action = payload.Action
	if event.Repo, err = types.ParseRepo(payload.Repository.FullName); err != nil {
		return event, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if payload.Number <= 0 {
		return event, fmt.Errorf("%w: missing pull request number", ErrMalformedEvent)
	}
	event.Number = int(payload.Number)
	if payload.PullRequest.Head.Sha == "" {
		return event, fmt.Errorf("%w: missing head sha", ErrMalformedEvent)
	}
	event.Sha = payload.PullRequest.Head.Sha
	return event, nil
}

type Dispatcher struct {
	checker Checker
	logger  *zap.Logger
}

func NewDispatcher(checker Checker, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{checker: checker, logger: logger}
}

// HandlePullRequest runs the check for opened, synchronize and reopened actions and ignores the
// rest. A processed outcome with an error means the check was aborted and no status was set.
func (d *Dispatcher) HandlePullRequest(ctx context.Context, payload webhook.PullRequestPayload) (Outcome, error) {
	if !qualifyingActions[payload.Action] {
		d.logger.Debug("ignoring pull_request action", zap.String("action", payload.Action))
		return OutcomeIgnored, nil
	}

	event, err := ParsePullRequestEvent(payload)
	if err != nil {
		return OutcomeIgnored, err
	}

	if _, err = d.checker.CheckAndSet(ctx, event.Repo, event.Number, event.Sha); err != nil {
		d.logger.Error("unable to evaluate pull request",
			zap.Stringer("repo", event.Repo),
			zap.Int("number", event.Number),
			zap.String("sha", event.Sha),
			zap.Error(err),
		)
		return OutcomeProcessed, err
	}
	return OutcomeProcessed, nil
}
