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

//go:build go1.16

package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v42/github"
	"github.com/sonatype-nexus-community/clam/config"
	"golang.org/x/oauth2"
)

// RepositoriesService handles communication with the repository related methods
// of the GitHub API.
// https://godoc.org/github.com/google/go-github/github#RepositoriesService
type RepositoriesService interface {
	CreateStatus(ctx context.Context, owner, repo, ref string, status *github.RepoStatus) (*github.RepoStatus, *github.Response, error)
	IsCollaborator(ctx context.Context, owner, repo, user string) (bool, *github.Response, error)
}

// OrganizationsService handles communication with the organization related methods
// of the GitHub API.
//
// GitHub API docs: https://docs.github.com/en/rest/reference/orgs
type OrganizationsService interface {
	IsMember(ctx context.Context, org, user string) (bool, *github.Response, error)
}

// UsersService handles communication with the user related methods
// of the GitHub API.
// https://godoc.org/github.com/google/go-github/github#UsersService
type UsersService interface {
	Get(context.Context, string) (*github.User, *github.Response, error)
}

// PullRequestsService handles communication with the pull request related
// methods of the GitHub API.
//
// GitHub API docs: https://docs.github.com/en/free-pro-team@latest/rest/reference/pulls/
type PullRequestsService interface {
	List(ctx context.Context, owner string, repo string, opts *github.PullRequestListOptions) ([]*github.PullRequest, *github.Response, error)
	ListCommits(ctx context.Context, owner string, repo string, number int, opts *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error)
}

// GHClient manages communication with the GitHub API.
// https://github.com/google/go-github/issues/113
type GHClient struct {
	Repositories  RepositoriesService
	Organizations OrganizationsService
	Users         UsersService
	PullRequests  PullRequestsService
}

// GHInterface defines all necessary methods.
// https://godoc.org/github.com/google/go-github/github#NewClient
type GHInterface interface {
	NewClient(httpClient *http.Client) (GHClient, error)
}

// GHCreator implements GHInterface. An empty BaseURL talks to github.com.
type GHCreator struct {
	BaseURL string
}

var _ GHInterface = (*GHCreator)(nil)

func (g *GHCreator) NewClient(httpClient *http.Client) (GHClient, error) {
	client := github.NewClient(httpClient)
	if g.BaseURL != "" {
		var err error
		if client, err = github.NewEnterpriseClient(g.BaseURL, g.BaseURL, httpClient); err != nil {
			return GHClient{}, err
		}
	}
	return GHClient{
		Repositories:  client.Repositories,
		Organizations: client.Organizations,
		Users:         client.Users,
		PullRequests:  client.PullRequests,
	}, nil
}

// NewAPIHTTPClient builds the authenticated client used for every call the service makes on its
// own behalf: a static token when one is configured, otherwise a GitHub App installation
// transport. The configured timeout bounds each request.
func NewAPIHTTPClient(cfg config.Config) (*http.Client, error) {
	if !cfg.UsesGitHubApp() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
		client := oauth2.NewClient(context.Background(), ts)
		client.Timeout = cfg.APITimeout
		return client, nil
	}

	itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, cfg.AppId, cfg.InstallId, cfg.PemFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load GitHub App key %s: %w", cfg.PemFile, err)
	}
	if cfg.GitHubAPIURL != "" {
		itr.BaseURL = EnterpriseAPIURL(cfg.GitHubAPIURL)
	}
	return &http.Client{Transport: itr, Timeout: cfg.APITimeout}, nil
}

const enterpriseAPIPath = "/api/v3"

// EnterpriseAPIURL appends /api/v3 unless already present, as github.NewEnterpriseClient does.
// The result has no trailing slash.
func EnterpriseAPIURL(baseURL string) string {
	apiURL := strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(apiURL, enterpriseAPIPath) {
		apiURL += enterpriseAPIPath
	}
	return apiURL
}

// EnterpriseWebURL is the server root that serves the OAuth pages of an enterprise install.
func EnterpriseWebURL(baseURL string) string {
	return strings.TrimSuffix(EnterpriseAPIURL(baseURL), enterpriseAPIPath)
}

// UpstreamError reports a GitHub API call that failed, timed out or answered with a non-success status.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func newUpstreamError(op string, resp *github.Response, err error) error {
	upstreamErr := &UpstreamError{Op: op, Err: err}
	if resp != nil && resp.Response != nil {
		upstreamErr.StatusCode = resp.StatusCode
	}
	return upstreamErr
}
