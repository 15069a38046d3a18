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

package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v42/github"
	"github.com/sonatype-nexus-community/clam/types"
	"go.uber.org/zap"
)

const (
	stateSuccess = "success"
	stateFailure = "failure"

	msgAllSigned    = "All contributors have signed the CLA!"
	msgNotAllSigned = "Not all contributors have signed the CLA"

	// maxListedAuthors bounds how many waiting logins the description names.
	maxListedAuthors = 5
	// maxDescriptionLength is GitHub's limit on a commit status description.
	maxDescriptionLength = 140
)

// StatusPublisher reports verdicts as commit statuses. Every status carries the same context, so
// publishing again for a commit replaces the earlier status.
type StatusPublisher struct {
	repositories RepositoriesService
	context      string
	signURL      string
	logger       *zap.Logger
}

func NewStatusPublisher(repositories RepositoriesService, statusContext, signURL string, logger *zap.Logger) *StatusPublisher {
	return &StatusPublisher{
		repositories: repositories,
		context:      statusContext,
		signURL:      signURL,
		logger:       logger,
	}
}

// Publish is best effort: a failed status push is logged and never returned.
func (p *StatusPublisher) Publish(ctx context.Context, repo types.Repo, sha string, verdict types.ComplianceVerdict) {
	status := p.repoStatus(verdict)

	p.logger.Debug("set commit status",
		zap.Stringer("repo", repo),
		zap.String("sha", sha),
		zap.String("state", status.GetState()),
		zap.String("description", status.GetDescription()),
	)

	_, resp, err := p.repositories.CreateStatus(ctx, repo.Owner, repo.Name, sha, status)
	if err != nil {
		p.logger.Error("failed to set commit status",
			zap.Stringer("repo", repo),
			zap.String("sha", sha),
			zap.Error(newUpstreamError("create commit status", resp, err)),
		)
	}
}

func (p *StatusPublisher) repoStatus(verdict types.ComplianceVerdict) *github.RepoStatus {
	state := stateFailure
	description := describeWaiting(verdict.Waiting)
	if verdict.Compliant {
		state = stateSuccess
		description = msgAllSigned
	}
	return &github.RepoStatus{
		State:       github.String(state),
		Description: github.String(description),
		TargetURL:   github.String(p.signURL),
		Context:     github.String(p.context),
	}
}

// describeWaiting renders "Waiting for @a, @b and @c to sign the CLA", naming at most
// maxListedAuthors logins.
func describeWaiting(waiting []string) string {
	if len(waiting) == 0 {
		return msgNotAllSigned
	}

	listed := waiting
	if len(listed) > maxListedAuthors {
		listed = listed[:maxListedAuthors]
	}
	mentions := make([]string, len(listed))
	for i, login := range listed {
		mentions[i] = "@" + login
	}

	var pretty string
	switch remaining := len(waiting) - len(listed); {
	case remaining == 1:
		pretty = strings.Join(mentions, ", ") + " and 1 other"
	case remaining > 1:
		pretty = fmt.Sprintf("%s and %d others", strings.Join(mentions, ", "), remaining)
	case len(mentions) == 1:
		pretty = mentions[0]
	default:
		pretty = strings.Join(mentions[:len(mentions)-1], ", ") + " and " + mentions[len(mentions)-1]
	}

	return truncate(fmt.Sprintf("Waiting for %s to sign the CLA", pretty), maxDescriptionLength)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
