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

package types

import (
	"fmt"
	"strings"
	"time"
)

// Signatory is the record of one person having signed the CLA. At most one exists per login.
type Signatory struct {
	Login      string    `json:"github_user"`
	CLAVersion string    `json:"cla_version"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Address    string    `json:"address"`
	Telephone  string    `json:"telephone"`
	TimeSigned time.Time `json:"signed_at"`
}

// Repo identifies a repository on the hosting platform.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo splits an "owner/name" full name.
func ParseRepo(fullName string) (repo Repo, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		err = fmt.Errorf("invalid repository name %q, expected owner/name", fullName)
		return
	}
	repo = Repo{Owner: parts[0], Name: parts[1]}
	return
}

// CommitAuthors is the deduplicated set of author logins found on a pull request.
// Unattributed holds the SHAs of commits not linked to any account.
type CommitAuthors struct {
	Logins       []string
	Unattributed []string
}

type PullRequestContext struct {
	Repo         Repo
	Number       int
	Sha          string
	Authors      []string
	Unattributed []string
}

type ComplianceVerdict struct {
	Compliant    bool     `json:"signed"`
	Waiting      []string `json:"waiting_for"`
	Unattributed []string `json:"unattributed,omitempty"`
}

type OpenPullRequest struct {
	Number int
	Sha    string
}

// SweepEntry is one line of a reconciliation report. Error is set when the pull request
// could not be evaluated, in which case Signed and WaitingFor carry no meaning.
type SweepEntry struct {
	Number     int      `json:"number"`
	Sha        string   `json:"head"`
	Signed     bool     `json:"signed"`
	WaitingFor []string `json:"waiting_for"`
	Error      string   `json:"error,omitempty"`
}
