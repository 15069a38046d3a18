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
// +build go1.16

package oauth

import (
	"context"
	"net/http"

	"github.com/google/go-github/v42/github"
	ourGithub "github.com/sonatype-nexus-community/clam/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

type OAuthInterface interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	Client(ctx context.Context, t *oauth2.Token) *http.Client
	GetOAuthUser(ctx context.Context, logger *zap.Logger, code string) (user *github.User, token *oauth2.Token, err error)
	GetTokenUser(ctx context.Context, logger *zap.Logger, accessToken string) (user *github.User, err error)
	// for testing only
	getConf() *oauth2.Config
}

type OAuthImpl struct {
	oauthConf  *oauth2.Config
	githubImpl ourGithub.GHInterface
}

var _ OAuthInterface = (*OAuthImpl)(nil)

func (oa *OAuthImpl) AuthCodeURL(state string) string {
	return oa.oauthConf.AuthCodeURL(state)
}

//goland:noinspection GoUnusedParameter
func (oa *OAuthImpl) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return oa.oauthConf.Exchange(ctx, code)
}

func (oa *OAuthImpl) Client(ctx context.Context, t *oauth2.Token) *http.Client {
	return oa.oauthConf.Client(ctx, t)
}

func (oa *OAuthImpl) getConf() *oauth2.Config {
	return oa.oauthConf
}

// GetOAuthUser trades the authorization code for a token and looks up who it belongs to.
func (oa *OAuthImpl) GetOAuthUser(ctx context.Context, logger *zap.Logger, code string) (user *github.User, token *oauth2.Token, err error) {
	token, err = oa.Exchange(ctx, code)
	if err != nil {
		logger.Error("oauth code exchange failed", zap.Error(err))
		return
	}

	user, err = oa.userFor(ctx, logger, token)
	return
}

func (oa *OAuthImpl) GetTokenUser(ctx context.Context, logger *zap.Logger, accessToken string) (user *github.User, err error) {
	return oa.userFor(ctx, logger, &oauth2.Token{AccessToken: accessToken})
}

func (oa *OAuthImpl) userFor(ctx context.Context, logger *zap.Logger, token *oauth2.Token) (user *github.User, err error) {
	client, err := oa.githubImpl.NewClient(oa.Client(ctx, token))
	if err != nil {
		return
	}

	user, _, err = client.Users.Get(ctx, "")
	if err != nil {
		logger.Error("failed to get authenticated user", zap.Error(err))
		return
	}
	return
}

// endpointFor returns github.com's OAuth endpoint, or the enterprise server's when a base URL is set.
func endpointFor(enterpriseURL string) oauth2.Endpoint {
	if enterpriseURL == "" {
		return githuboauth.Endpoint
	}
	webURL := ourGithub.EnterpriseWebURL(enterpriseURL)
	return oauth2.Endpoint{
		AuthURL:  webURL + "/login/oauth/authorize",
		TokenURL: webURL + "/login/oauth/access_token",
	}
}

// CreateOAuth builds the sign-in flow. It only asks for the user's identity, no scopes.
func CreateOAuth(clientID, clientSecret, enterpriseURL string, githubImpl ourGithub.GHInterface) OAuthInterface {
	oauthConf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{},
		Endpoint:     endpointFor(enterpriseURL),
	}
	return &OAuthImpl{
		oauthConf:  oauthConf,
		githubImpl: githubImpl,
	}
}
