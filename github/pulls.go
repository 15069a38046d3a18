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

	"github.com/google/go-github/v42/github"
	"github.com/sonatype-nexus-community/clam/types"
)

const pullsPerPage = 100

type PullRequestLister struct {
	pullRequests PullRequestsService
}

func NewPullRequestLister(pullRequests PullRequestsService) *PullRequestLister {
	return &PullRequestLister{pullRequests: pullRequests}
}

// ListOpen returns the number and head commit of every open pull request, following pagination.
func (l *PullRequestLister) ListOpen(ctx context.Context, repo types.Repo) ([]types.OpenPullRequest, error) {
	open := []types.OpenPullRequest{}
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: pullsPerPage},
	}
	for {
		pulls, resp, err := l.pullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, newUpstreamError("list open pull requests", resp, err)
		}
		for _, pr := range pulls {
			open = append(open, types.OpenPullRequest{Number: pr.GetNumber(), Sha: pr.GetHead().GetSHA()})
		}
		if resp == nil || resp.NextPage == 0 {
			return open, nil
		}
		opts.Page = resp.NextPage
	}
}
