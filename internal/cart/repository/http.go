package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/client/internal/apperr"
	"storefront/client/internal/cart/domain"
	"storefront/client/internal/transport"
)

var tracer = otel.Tracer("storefront/client/cart")

// Remote is the user's cart on the cart backend: GET and PATCH /users/:id.
// Bodies are plain JSON without the identity envelope.
type Remote struct {
	client *transport.Client
}

// NewRemote returns the cart backend repository.
func NewRemote(client *transport.Client) *Remote {
	return &Remote{client: client}
}

type userCart struct {
	ID   any            `json:"id,omitempty"`
	Cart []domain.Entry `json:"cart"`
}

// Fetch returns the user's server cart.
func (r *Remote) Fetch(ctx context.Context, userID string) (entries []domain.Entry, err error) {
	ctx, span := tracer.Start(ctx, "cart.Fetch", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	resp, err := r.client.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	if err := statusError("fetch cart", resp.Status); err != nil {
		return nil, err
	}
	var body userCart
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("fetch cart: %w: %v", apperr.ErrProtocol, err)
	}
	return body.Cart, nil
}

// Push replaces the user's server cart with entries.
func (r *Remote) Push(ctx context.Context, userID string, entries []domain.Entry) (err error) {
	ctx, span := tracer.Start(ctx, "cart.Push", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("cart.entries", len(entries)),
	))
	defer func() { endSpan(span, err) }()

	if entries == nil {
		entries = []domain.Entry{}
	}
	resp, err := r.client.Do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID), userCart{Cart: entries}, nil)
	if err != nil {
		return fmt.Errorf("push cart: %w", err)
	}
	return statusError("push cart", resp.Status)
}

func statusError(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, apperr.ErrAccountNotFound)
	case status >= 500:
		return fmt.Errorf("%s: %w: status %d", op, apperr.ErrNetwork, status)
	default:
		return fmt.Errorf("%s: %w: status %d", op, apperr.ErrProtocol, status)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	}
	span.End()
}
