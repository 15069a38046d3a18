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

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sonatype-nexus-community/clam/cla"
	"github.com/sonatype-nexus-community/clam/db"
	"github.com/sonatype-nexus-community/clam/oauth"
	"github.com/sonatype-nexus-community/clam/types"
	"go.uber.org/zap"
	webhook "gopkg.in/go-playground/webhooks.v5/github"
)

const (
	pathWebhook       = "/_github"
	pathCheck         = "/_hubot/check/:owner/:repo"
	pathDownload      = "/download"
	pathClaText       = "/cla-text"
	pathLogin         = "/login"
	pathOAuthCallback = "/oauth-callback"
	pathSignCla       = "/sign-cla"
)

const (
	msgNothingToDo       = "nothing to do\n"
	msgTemplateIgnoring  = "ignoring pull_request action: %s\n"
	msgStatusSet         = "commit status set\n"
	msgUnableToEvaluate  = "unable to evaluate pull request\n"
	msgUnparsablePayload = "unable to parse payload\n"
	msgInvalidSignature  = "invalid signature\n"
)

const headerGitHubDelivery = "X-GitHub-Delivery"

// recheckTimeout bounds the background sweep that follows a new signature.
const recheckTimeout = 5 * time.Minute

type PullRequestHandler interface {
	HandlePullRequest(ctx context.Context, payload webhook.PullRequestPayload) (cla.Outcome, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, repo types.Repo) ([]types.SweepEntry, error)
}

type server struct {
	logger       *zap.Logger
	hook         *webhook.Webhook
	dispatcher   PullRequestHandler
	sweeper      Sweeper
	registry     db.IClaDB
	oauth        oauth.OAuthInterface
	claText      *claTextCache
	adminToken   string
	recheckRepos []types.Repo
	background   sync.WaitGroup
}

type requestValidator struct {
	validator *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.validator.Struct(i)
}

// newEcho registers the routes. The sign-in routes only exist when OAuth is configured.
func (s *server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validator: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(zapRequestLogger(s.logger))

	e.POST(pathWebhook, s.processWebhook)
	e.GET(pathClaText, s.retrieveCLAText)
	e.GET(pathCheck, s.checkRepo, s.adminAuth()...)
	e.GET(pathDownload, s.downloadSignatures, s.adminAuth()...)

	if s.oauth != nil {
		e.GET(pathLogin, s.login)
		e.GET(pathOAuthCallback, s.processGitHubOAuth)
		e.POST(pathSignCla, s.signCLA)
	}
	return e
}

func zapRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			logger.Info("request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}

func (s *server) adminAuth() []echo.MiddlewareFunc {
	if s.adminToken == "" {
		return nil
	}
	return []echo.MiddlewareFunc{
		middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(s.adminToken)) == 1, nil
		}),
	}
}

// processWebhook always acknowledges the delivery with 200. Whether the CLA check passed is only
// visible through the commit status.
func (s *server) processWebhook(c echo.Context) error {
	deliveryID := c.Request().Header.Get(headerGitHubDelivery)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("delivery", deliveryID))

	payload, err := s.hook.Parse(c.Request(), webhook.PullRequestEvent)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrEventNotFound), errors.Is(err, webhook.ErrMissingGithubEventHeader):
			logger.Debug("ignoring event", zap.String("event", c.Request().Header.Get("X-GitHub-Event")))
			return c.String(http.StatusOK, msgNothingToDo)
		case errors.Is(err, webhook.ErrHMACVerificationFailed), errors.Is(err, webhook.ErrMissingHubSignatureHeader):
			logger.Warn("webhook signature rejected", zap.Error(err))
			return c.String(http.StatusOK, msgInvalidSignature)
		default:
			logger.Error("unable to parse webhook payload", zap.Error(err))
			return c.String(http.StatusOK, msgUnparsablePayload)
		}
	}

	pr, ok := payload.(webhook.PullRequestPayload)
	if !ok {
		return c.String(http.StatusOK, msgNothingToDo)
	}

	outcome, err := s.dispatcher.HandlePullRequest(c.Request().Context(), pr)
	switch {
	case errors.Is(err, cla.ErrMalformedEvent):
		logger.Error("malformed pull_request payload", zap.Error(err))
		return c.String(http.StatusOK, msgUnparsablePayload)
	case err != nil:
		logger.Error("pull request check aborted", zap.Error(err))
		return c.String(http.StatusOK, msgUnableToEvaluate)
	case outcome == cla.OutcomeIgnored:
		return c.String(http.StatusOK, fmt.Sprintf(msgTemplateIgnoring, pr.Action))
	default:
		logger.Debug("commit status set", zap.Int64("number", pr.Number))
		return c.String(http.StatusOK, msgStatusSet)
	}
}

func (s *server) checkRepo(c echo.Context) error {
	repo := types.Repo{Owner: c.Param("owner"), Name: c.Param("repo")}
	report, err := s.sweeper.Sweep(c.Request().Context(), repo)
	if err != nil {
		s.logger.Error("sweep failed", zap.Stringer("repo", repo), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSONPretty(http.StatusOK, report, "  ")
}

func (s *server) downloadSignatures(c echo.Context) error {
	signatures, err := s.registry.ListSignatures(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSONPretty(http.StatusOK, signatures, "  ")
}

const msgMissingClaUrl = "missing CLA_URL environment variable"

type claTextCache struct {
	url    string
	client *http.Client
	mu     sync.Mutex
	text   string
}

func (cc *claTextCache) get(ctx context.Context) (string, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if cc.text != "" {
		return cc.text, nil
	}
	if cc.url == "" {
		return "", errors.New(msgMissingClaUrl)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cc.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := cc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected cla text response code: %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	cc.text = string(content)
	return cc.text, nil
}

func (s *server) retrieveCLAText(c echo.Context) error {
	text, err := s.claText.get(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to fetch CLA text", zap.Error(err))
		return err
	}
	return c.String(http.StatusOK, text)
}

const (
	cookieOAuthState = "clam_oauth_state"
	oauthStateMaxAge = 10 * time.Minute
)

func (s *server) oauthStateCookie(c echo.Context, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cookieOAuthState,
		Value:    value,
		Path:     pathOAuthCallback,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

// login binds the OAuth state to the browser so the callback only accepts a flow this browser started.
func (s *server) login(c echo.Context) error {
	state := uuid.NewString()
	c.SetCookie(s.oauthStateCookie(c, state, int(oauthStateMaxAge.Seconds())))
	return c.Redirect(http.StatusFound, s.oauth.AuthCodeURL(state))
}

func (s *server) validOAuthState(c echo.Context, state string) bool {
	cookie, err := c.Cookie(cookieOAuthState)
	if err != nil || cookie.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

type signInView struct {
	Authenticated bool   `json:"authenticated"`
	Login         string `json:"login,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Signed        bool   `json:"signed"`
	CLAVersion    string `json:"cla_version,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
}

// processGitHubOAuth answers with an unauthenticated view whenever the identity cannot be
// established.
func (s *server) processGitHubOAuth(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return c.JSON(http.StatusOK, signInView{})
	}
	if !s.validOAuthState(c, state) {
		s.logger.Warn("oauth state does not match the one issued to this browser")
		return c.JSON(http.StatusOK, signInView{})
	}
	c.SetCookie(s.oauthStateCookie(c, "", -1))

	user, token, err := s.oauth.GetOAuthUser(c.Request().Context(), s.logger, code)
	if err != nil || user.GetLogin() == "" {
		s.logger.Debug("error getting username from github, treating as not authenticated", zap.Error(err))
		return c.JSON(http.StatusOK, signInView{})
	}

	signature, err := s.registry.GetSignature(c.Request().Context(), user.GetLogin())
	if err != nil {
		return err
	}
	view := signInView{
		Authenticated: true,
		Login:         user.GetLogin(),
		Email:         user.GetEmail(),
		Name:          user.GetName(),
		AccessToken:   token.AccessToken,
	}
	if signature != nil {
		view.Signed = true
		view.CLAVersion = signature.CLAVersion
	}
	return c.JSON(http.StatusOK, view)
}

type signRequest struct {
	FullName   string `json:"full_name" validate:"min=4,max=25"`
	Email      string `json:"email" validate:"required,email,min=6,max=35"`
	Address    string `json:"address"`
	Telephone  string `json:"telephone"`
	CLAVersion string `json:"cla_version" validate:"required"`
	Accept     bool   `json:"accept" validate:"required"`
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func (s *server) signCLA(c echo.Context) error {
	accessToken := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if accessToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "sign in with GitHub first")
	}

	user, err := s.oauth.GetTokenUser(c.Request().Context(), s.logger, accessToken)
	if err != nil || user.GetLogin() == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unable to identify GitHub user")
	}

	req := new(signRequest)
	if err = c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	signature := types.Signatory{
		Login:      user.GetLogin(),
		CLAVersion: req.CLAVersion,
		FullName:   req.FullName,
		Email:      req.Email,
		Address:    req.Address,
		Telephone:  req.Telephone,
		TimeSigned: time.Now().UTC(),
	}
	if err = s.registry.InsertSignature(c.Request().Context(), &signature); err != nil {
		if errors.Is(err, db.ErrDuplicateSignature) {
			return echo.NewHTTPError(http.StatusConflict, "the CLA has already been signed by "+signature.Login)
		}
		return err
	}
	s.logger.Info("CLA signed", zap.String("login", signature.Login), zap.String("claVersion", signature.CLAVersion))

	s.recheckAfterSigning(signature.Login)
	return c.JSON(http.StatusCreated, signature)
}

// recheckAfterSigning sweeps the configured repositories so pull requests waiting on the new
// signatory turn green without a new push.
func (s *server) recheckAfterSigning(login string) {
	if len(s.recheckRepos) == 0 {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
		defer cancel()
		for _, repo := range s.recheckRepos {
			report, err := s.sweeper.Sweep(ctx, repo)
			if err != nil {
				s.logger.Error("recheck after signing failed",
					zap.String("login", login),
					zap.Stringer("repo", repo),
					zap.Error(err),
				)
				continue
			}
			s.logger.Debug("recheck after signing", zap.Stringer("repo", repo), zap.Int("pullRequests", len(report)))
		}
	}()
}
