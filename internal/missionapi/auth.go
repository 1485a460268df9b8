package missionapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// RoleUser is the only account role allowed to sign in.
const RoleUser = "USER"

var (
	ErrCredentialsRequired = errors.New("enter a username and password")
	ErrRoleNotAllowed      = errors.New("only USER accounts can sign in")
)

const (
	loginFallback     = "login failed"
	loginUnauthorized = "invalid username or password"
	signupFallback    = "sign up failed"
)

// LoginResult is the token issued by the backend.
type LoginResult struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func trimCredentials(username, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return "", "", ErrCredentialsRequired
	}
	return username, password, nil
}

// Login exchanges credentials for a bearer token. Accounts without the USER
// role are refused.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username, password, err := trimCredentials(username, password)
	if err != nil {
		return LoginResult{}, err
	}

	var res LoginResult
	err = c.do(ctx, request{
		method:       http.MethodPost,
		path:         "/api/auth/login",
		body:         credentials{Username: username, Password: password},
		fallback:     loginFallback,
		unauthorized: loginUnauthorized,
	}, &res)
	if err != nil {
		return LoginResult{}, err
	}
	if res.Role != RoleUser {
		return LoginResult{}, ErrRoleNotAllowed
	}
	return res, nil
}

// Signup creates a USER account and returns its token.
func (c *Client) Signup(ctx context.Context, username, password string) (LoginResult, error) {
	username, password, err := trimCredentials(username, password)
	if err != nil {
		return LoginResult{}, err
	}

	var res LoginResult
	err = c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/auth/signup",
		body:     credentials{Username: username, Password: password, Role: RoleUser},
		fallback: signupFallback,
	}, &res)
	if err != nil {
		return LoginResult{}, err
	}
	res.Role = RoleUser
	return res, nil
}
