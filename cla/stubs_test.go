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
	"strings"
	"sync"

	"github.com/sonatype-nexus-community/clam/types"
)

type oracleStub struct {
	mu     sync.Mutex
	exempt map[string]bool
	errs   map[string]error
	calls  []string
}

func (o *oracleStub) IsExempt(_ context.Context, login string, _ types.Repo) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, login)
	if err := o.errs[login]; err != nil {
		return false, err
	}
	return o.exempt[login], nil
}

type registryStub struct {
	mu     sync.Mutex
	signed map[string]string // login -> cla version
	err    error
	calls  []string
}

func (r *registryStub) HasSigned(_ context.Context, login string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, login)
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.signed[strings.ToLower(login)]
	return ok, nil
}

type resolverStub struct {
	authors map[int]types.CommitAuthors
	errs    map[int]error
}

func (r *resolverStub) ResolveAuthors(_ context.Context, _ types.Repo, number int) (types.CommitAuthors, error) {
	if err := r.errs[number]; err != nil {
		return types.CommitAuthors{}, err
	}
	return r.authors[number], nil
}

type published struct {
	repo    types.Repo
	sha     string
	verdict types.ComplianceVerdict
}

type publisherStub struct {
	mu        sync.Mutex
	published []published
}

func (p *publisherStub) Publish(_ context.Context, repo types.Repo, sha string, verdict types.ComplianceVerdict) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, published{repo: repo, sha: sha, verdict: verdict})
}

type checkerStub struct {
	mu      sync.Mutex
	calls   []int
	verdict types.ComplianceVerdict
	err     error
}

func (c *checkerStub) CheckAndSet(_ context.Context, _ types.Repo, number int, _ string) (types.ComplianceVerdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, number)
	return c.verdict, c.err
}

type listerStub struct {
	pulls []types.OpenPullRequest
	err   error
}

func (l *listerStub) ListOpen(context.Context, types.Repo) ([]types.OpenPullRequest, error) {
	return l.pulls, l.err
}
