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

	"github.com/sonatype-nexus-community/clam/types"
)

type AuthorResolver interface {
	ResolveAuthors(ctx context.Context, repo types.Repo, number int) (types.CommitAuthors, error)
}

type StatusPublisher interface {
	Publish(ctx context.Context, repo types.Repo, sha string, verdict types.ComplianceVerdict)
}

// Checker runs the full check for one pull request head.
type Checker interface {
	CheckAndSet(ctx context.Context, repo types.Repo, number int, sha string) (types.ComplianceVerdict, error)
}

// Pipeline resolves authors, evaluates them and publishes the verdict.
type Pipeline struct {
	resolver  AuthorResolver
	evaluator *Evaluator
	publisher StatusPublisher
}

var _ Checker = (*Pipeline)(nil)

func NewPipeline(resolver AuthorResolver, evaluator *Evaluator, publisher StatusPublisher) *Pipeline {
	return &Pipeline{resolver: resolver, evaluator: evaluator, publisher: publisher}
}

// CheckAndSet publishes nothing when authors cannot be resolved or evaluated: a pull request is
// never reported compliant or non-compliant on partial data.
func (p *Pipeline) CheckAndSet(ctx context.Context, repo types.Repo, number int, sha string) (types.ComplianceVerdict, error) {
	authors, err := p.resolver.ResolveAuthors(ctx, repo, number)
	if err != nil {
		return types.ComplianceVerdict{}, err
	}

	verdict, err := p.evaluator.Evaluate(ctx, types.PullRequestContext{
		Repo:         repo,
		Number:       number,
		Sha:          sha,
		Authors:      authors.Logins,
		Unattributed: authors.Unattributed,
	})
	if err != nil {
		return types.ComplianceVerdict{}, err
	}

	p.publisher.Publish(ctx, repo, sha, verdict)
	return verdict, nil
}
