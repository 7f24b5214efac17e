package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/client/internal/apperr"
	"storefront/client/internal/identity/domain"
	"storefront/client/internal/transport"
)

var tracer = otel.Tracer("storefront/client/identity")

// HTTPRepository implements Repository against the identity backend.
type HTTPRepository struct {
	client *transport.Client
}

// NewHTTPRepository returns a Repository using client.
func NewHTTPRepository(client *transport.Client) *HTTPRepository {
	return &HTTPRepository{client: client}
}

func (r *HTTPRepository) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "identity.Login")
	defer func() { endSpan(span, err) }()

	resp, err := r.client.Do(ctx, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, nil)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	data, err := decode("login", resp, apperr.ErrInvalidCredentials)
	if err != nil {
		return nil, err
	}

	var body struct {
		Token string          `json:"token"`
		User  json.RawMessage `json:"user"`
		Data  *struct {
			Token string          `json:"token"`
			User  json.RawMessage `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("login: %w: %v", apperr.ErrProtocol, err)
	}
	token, rawUser := body.Token, body.User
	if body.Data != nil {
		if token == "" {
			token = body.Data.Token
		}
		if len(rawUser) == 0 {
			rawUser = body.Data.User
		}
	}
	if token == "" || len(rawUser) == 0 {
		return nil, fmt.Errorf("login: %w: missing token or user", apperr.ErrProtocol)
	}
	user, err := domain.ParseProfile(rawUser)
	if err != nil {
		return nil, fmt.Errorf("login: %w: %v", apperr.ErrProtocol, err)
	}
	if !user.Valid() {
		return nil, fmt.Errorf("login: %w: user without id", apperr.ErrProtocol)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))
	return &LoginResult{Token: token, User: user}, nil
}

func (r *HTTPRepository) SendOTP(ctx context.Context, email, purpose string) (err error) {
	ctx, span := tracer.Start(ctx, "identity.SendOTP", trace.WithAttributes(attribute.String("otp.purpose", purpose)))
	defer func() { endSpan(span, err) }()

	resp, err := r.client.Do(ctx, http.MethodPost, "/send-otp", map[string]string{"email": email, "purpose": purpose}, nil)
	if err != nil {
		return fmt.Errorf("send-otp: %w", err)
	}
	_, err = decode("send-otp", resp, nil)
	return err
}

func (r *HTTPRepository) VerifyOTP(ctx context.Context, email, otp, purpose string) (data json.RawMessage, err error) {
	ctx, span := tracer.Start(ctx, "identity.VerifyOTP", trace.WithAttributes(attribute.String("otp.purpose", purpose)))
	defer func() { endSpan(span, err) }()

	resp, err := r.client.Do(ctx, http.MethodPost, "/verify-otp", map[string]string{"email": email, "otp": otp, "purpose": purpose}, nil)
	if err != nil {
		return nil, fmt.Errorf("verify-otp: %w", err)
	}
	return decode("verify-otp", resp, apperr.ErrInvalidChallenge)
}

func (r *HTTPRepository) Me(ctx context.Context, userID, token string) (p *domain.Profile, err error) {
	ctx, span := tracer.Start(ctx, "identity.Me", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	resp, err := r.client.Do(ctx, http.MethodGet, "/me?user_id="+url.QueryEscape(userID), nil, transport.Bearer(token))
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	data, err := decode("me", resp, nil)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.User) > 0 {
		data = wrapped.User
	}
	profile, err := domain.ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("me: %w: %v", apperr.ErrProtocol, err)
	}
	if !profile.Valid() {
		profile.ID = userID
	}
	return &profile, nil
}

// AccountStatus probes check-account-status. Backends without that endpoint
// (404, 405, 501) are probed with a login attempt using a random password and
// the result is read from the rejection.
func (r *HTTPRepository) AccountStatus(ctx context.Context, email string) (st *domain.AccountStatus, err error) {
	ctx, span := tracer.Start(ctx, "identity.AccountStatus")
	defer func() { endSpan(span, err) }()

	resp, err := r.client.Do(ctx, http.MethodPost, "/check-account-status", map[string]string{"email": email}, nil)
	if err != nil {
		return nil, fmt.Errorf("check-account-status: %w", err)
	}
	switch resp.Status {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		span.SetAttributes(attribute.Bool("identity.status_fallback", true))
		return r.probeByLogin(ctx, email)
	}

	data, err := decode("check-account-status", resp, nil)
	if err != nil {
		if errors.Is(err, apperr.ErrAccountNotFound) {
			return &domain.AccountStatus{}, nil
		}
		if errors.Is(err, apperr.ErrAccountInactive) {
			return &domain.AccountStatus{Exists: true}, nil
		}
		return nil, err
	}
	var body struct {
		Exists   *bool `json:"exists"`
		Active   *bool `json:"active"`
		IsActive *bool `json:"is_active"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Exists == nil {
		return nil, fmt.Errorf("check-account-status: %w", apperr.ErrProtocol)
	}
	active := body.Active
	if active == nil {
		active = body.IsActive
	}
	return &domain.AccountStatus{Exists: *body.Exists, Active: *body.Exists && active != nil && *active}, nil
}

func (r *HTTPRepository) probeByLogin(ctx context.Context, email string) (*domain.AccountStatus, error) {
	_, err := r.Login(ctx, email, uuid.NewString())
	switch {
	case err == nil, errors.Is(err, apperr.ErrInvalidCredentials):
		return &domain.AccountStatus{Exists: true, Active: true}, nil
	case errors.Is(err, apperr.ErrAccountInactive):
		return &domain.AccountStatus{Exists: true}, nil
	case errors.Is(err, apperr.ErrAccountNotFound):
		return &domain.AccountStatus{}, nil
	default:
		return nil, err
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	}
	span.End()
}
