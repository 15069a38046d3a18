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
	"strings"

	"github.com/google/go-github/v42/github"
	"github.com/sonatype-nexus-community/clam/types"
	"go.uber.org/zap"
)

// webFlowLogin is the committer GitHub records for commits made through its web UI.
const webFlowLogin = "web-flow"

const commitsPerPage = 100

type AuthorResolver struct {
	pullRequests PullRequestsService
	logger       *zap.Logger
}

func NewAuthorResolver(pullRequests PullRequestsService, logger *zap.Logger) *AuthorResolver {
	return &AuthorResolver{pullRequests: pullRequests, logger: logger}
}

// ResolveAuthors lists every commit of the pull request and returns the committer logins in
// first seen order, without duplicates. Logins compare case-insensitively.
func (r *AuthorResolver) ResolveAuthors(ctx context.Context, repo types.Repo, number int) (authors types.CommitAuthors, err error) {
	r.logger.Debug("getting committers", zap.Stringer("repo", repo), zap.Int("number", number))

	seen := map[string]bool{}
	opts := &github.ListOptions{PerPage: commitsPerPage}
	for {
		commits, resp, listErr := r.pullRequests.ListCommits(ctx, repo.Owner, repo.Name, number, opts)
		if listErr != nil {
			return types.CommitAuthors{}, newUpstreamError("list pull request commits", resp, listErr)
		}

		for _, commit := range commits {
			login := commitLogin(commit)
			if login == "" {
				r.logger.Warn("commit is not linked to an account",
					zap.Stringer("repo", repo),
					zap.String("sha", commit.GetSHA()),
				)
				authors.Unattributed = append(authors.Unattributed, commit.GetSHA())
				continue
			}
			key := strings.ToLower(login)
			if seen[key] {
				continue
			}
			seen[key] = true
			authors.Logins = append(authors.Logins, login)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	r.logger.Debug("committers found",
		zap.Int("number", number),
		zap.Strings("logins", authors.Logins),
		zap.Int("unattributed", len(authors.Unattributed)),
	)
	return
}

// commitLogin prefers the committer, falling back to the author when the committer is missing
// or is the web-flow bot.
func commitLogin(commit *github.RepositoryCommit) string {
	login := commit.GetCommitter().GetLogin()
	if login == "" || login == webFlowLogin {
		if author := commit.GetAuthor().GetLogin(); author != "" {
			return author
		}
	}
	if login == webFlowLogin {
		return ""
	}
	return login
}
