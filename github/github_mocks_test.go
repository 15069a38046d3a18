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
	"sync"

	"github.com/google/go-github/v42/github"
)

// RepositoriesMock mocks RepositoriesService. Statuses are stored the way GitHub stores them:
// one per (repository, ref, context), the latest write wins.
type RepositoriesMock struct {
	mu                  sync.Mutex
	collaborators       map[string]bool
	isCollaboratorErr   error
	isCollaboratorCalls int
	createStatusErr     error
	createStatusResp    *github.Response
	createStatusCalls   int
	statuses            map[string]*github.RepoStatus
}

var _ RepositoriesService = (*RepositoriesMock)(nil)

func statusKey(owner, repo, ref, context string) string {
	return strings.Join([]string{owner, repo, ref, context}, "|")
}

func (r *RepositoriesMock) CreateStatus(ctx context.Context, owner, repo, ref string, status *github.RepoStatus) (*github.RepoStatus, *github.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createStatusCalls++
	if r.createStatusErr != nil {
		return nil, r.createStatusResp, r.createStatusErr
	}
	if r.statuses == nil {
		r.statuses = map[string]*github.RepoStatus{}
	}
	r.statuses[statusKey(owner, repo, ref, status.GetContext())] = status
	return status, r.createStatusResp, nil
}

//goland:noinspection GoUnusedParameter
func (r *RepositoriesMock) IsCollaborator(ctx context.Context, owner, repo, user string) (bool, *github.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isCollaboratorCalls++
	return r.collaborators[user], nil, r.isCollaboratorErr
}

// OrganizationsMock mocks OrganizationsService
type OrganizationsMock struct {
	members       map[string]bool
	isMemberErr   error
	isMemberCalls int
	lastOrg       string
}

var _ OrganizationsService = (*OrganizationsMock)(nil)

//goland:noinspection GoUnusedParameter
func (o *OrganizationsMock) IsMember(ctx context.Context, org, user string) (bool, *github.Response, error) {
	o.isMemberCalls++
	o.lastOrg = org
	return o.members[user], nil, o.isMemberErr
}

// PullRequestsMock mocks PullRequestsService. Each slice entry is one page; the response
// points at the following page until the last one.
type PullRequestsMock struct {
	commitPages          [][]*github.RepositoryCommit
	mockListCommitsError error
	mockListCommitsResp  *github.Response
	pullPages            [][]*github.PullRequest
	mockListError        error
	requestedPages       []int
	listOpts             *github.PullRequestListOptions
}

var _ PullRequestsService = (*PullRequestsMock)(nil)

func nextPageResponse(page, pages int) *github.Response {
	resp := &github.Response{}
	if page+1 < pages {
		resp.NextPage = page + 2
	}
	return resp
}

func pageIndex(requested int) int {
	if requested == 0 {
		return 0
	}
	return requested - 1
}

//goland:noinspection GoUnusedParameter
func (p *PullRequestsMock) ListCommits(ctx context.Context, owner string, repo string, number int, opts *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
	p.requestedPages = append(p.requestedPages, opts.Page)
	if p.mockListCommitsError != nil {
		return nil, p.mockListCommitsResp, p.mockListCommitsError
	}
	if len(p.commitPages) == 0 {
		return nil, &github.Response{}, nil
	}
	page := pageIndex(opts.Page)
	return p.commitPages[page], nextPageResponse(page, len(p.commitPages)), nil
}

//goland:noinspection GoUnusedParameter
func (p *PullRequestsMock) List(ctx context.Context, owner string, repo string, opts *github.PullRequestListOptions) ([]*github.PullRequest, *github.Response, error) {
	p.listOpts = opts
	p.requestedPages = append(p.requestedPages, opts.Page)
	if p.mockListError != nil {
		return nil, nil, p.mockListError
	}
	if len(p.pullPages) == 0 {
		return nil, &github.Response{}, nil
	}
	page := pageIndex(opts.Page)
	return p.pullPages[page], nextPageResponse(page, len(p.pullPages)), nil
}

// ExemptionCacheMock is a map backed ExemptionCache
type ExemptionCacheMock struct {
	entries map[string]bool
	getErr  error
	setErr  error
}

var _ ExemptionCache = (*ExemptionCacheMock)(nil)

//goland:noinspection GoUnusedParameter
func (c *ExemptionCacheMock) Get(ctx context.Context, key string) (bool, bool, error) {
	if c.getErr != nil {
		return false, false, c.getErr
	}
	exempt, found := c.entries[key]
	return exempt, found, nil
}

//goland:noinspection GoUnusedParameter
func (c *ExemptionCacheMock) Set(ctx context.Context, key string, exempt bool) error {
	if c.setErr != nil {
		return c.setErr
	}
	if c.entries == nil {
		c.entries = map[string]bool{}
	}
	c.entries[key] = exempt
	return nil
}

func commit(sha, committer, author string) *github.RepositoryCommit {
	c := &github.RepositoryCommit{SHA: github.String(sha)}
	if committer != "" {
		c.Committer = &github.User{Login: github.String(committer)}
	}
	if author != "" {
		c.Author = &github.User{Login: github.String(author)}
	}
	return c
}

func pull(number int, sha string) *github.PullRequest {
	return &github.PullRequest{
		Number: github.Int(number),
		Head:   &github.PullRequestBranch{SHA: github.String(sha)},
	}
}
