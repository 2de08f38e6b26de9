// Package profileapi talks to the staff profile backend.
package profileapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/api/dto"
	"github.com/spec-kit/staff-profile/internal/config"
	"github.com/spec-kit/staff-profile/internal/domain"
	"github.com/spec-kit/staff-profile/internal/observability"
	apperrors "github.com/spec-kit/staff-profile/pkg/util/errorutil"
)

// Operation names used for logging and metrics.
const (
	OpGetProfile     = "get_profile"
	OpUpdateProfile  = "update_profile"
	OpChangePassword = "change_password"
)

// Client issues the profile and change-password calls. It never retries.
type Client struct {
	baseURL string
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewClient builds a client for the configured backend.
func NewClient(cfg config.APIConfig, metrics *observability.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: cfg.RequestTimeout(),
		metrics: metrics,
		logger:  logger.Named("profileapi"),
	}
}

// GetProfile fetches GET /staff/profile/{id}.
func (c *Client) GetProfile(ctx context.Context, token, staffID string) (domain.StaffProfile, error) {
	var payload dto.ProfilePayload
	err := c.do(ctx, token, call{
		operation: OpGetProfile,
		method:    fiber.MethodGet,
		path:      "/staff/profile/" + url.PathEscape(staffID),
		out:       &payload,
	})
	if err != nil {
		return domain.StaffProfile{}, err
	}
	return dto.ProfileFromPayload(payload), nil
}

// UpdateProfile sends the whole record with PUT /staff/profile/{id}. The response
// body is not used.
func (c *Client) UpdateProfile(ctx context.Context, token, staffID string, profile domain.StaffProfile) error {
	return c.do(ctx, token, call{
		operation: OpUpdateProfile,
		method:    fiber.MethodPut,
		path:      "/staff/profile/" + url.PathEscape(staffID),
		body:      dto.PayloadFromProfile(profile),
	})
}

// ChangePassword sends PUT /staff/change-password/{id}.
func (c *Client) ChangePassword(ctx context.Context, token, staffID, currentPassword, newPassword string) error {
	return c.do(ctx, token, call{
		operation: OpChangePassword,
		method:    fiber.MethodPut,
		path:      "/staff/change-password/" + url.PathEscape(staffID),
		body: dto.ChangePasswordRequest{
			CurrentPassword: currentPassword,
			NewPassword:     newPassword,
		},
	})
}

type call struct {
	operation string
	method    string
	path      string
	body      interface{}
	out       interface{}
}

type result struct {
	code int
	body []byte
	errs []error
}

func (c *Client) do(ctx context.Context, token string, cl call) error {
	if err := ctx.Err(); err != nil {
		return c.fail(cl, apperrors.NewTransportError(err))
	}

	requestID := uuid.NewString()
	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(cl.method)
	req.SetRequestURI(c.baseURL + cl.path)

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Set(fiber.HeaderXRequestID, requestID)
	if token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if cl.body != nil {
		agent.JSON(cl.body)
	}
	if timeout := c.timeoutFor(ctx); timeout > 0 {
		agent.Timeout(timeout)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return c.fail(cl, apperrors.NewTransportError(err))
	}

	logger := c.logger.With(
		zap.String("operation", cl.operation),
		zap.String("method", cl.method),
		zap.String("path", cl.path),
		zap.String("request_id", requestID),
	)
	logger.Debug("profile api request")

	start := time.Now()
	// fasthttp cannot abort a sent request; on ctx cancellation only the wait ends.
	done := make(chan result, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- result{code: code, body: body, errs: errs}
	}()

	var res result
	select {
	case <-ctx.Done():
		logger.Debug("profile api request abandoned", zap.Error(ctx.Err()))
		return c.fail(cl, apperrors.NewTransportError(ctx.Err()))
	case res = <-done:
	}

	elapsed := time.Since(start)
	if len(res.errs) > 0 {
		err := apperrors.NewTransportError(errors.Join(res.errs...))
		logger.Debug("profile api unreachable", zap.Duration("elapsed", elapsed), zap.Error(err))
		return c.fail(cl, err)
	}

	c.metrics.RecordRequest(cl.operation, cl.method, res.code, elapsed)
	logger.Debug("profile api response", zap.Int("status", res.code), zap.Duration("elapsed", elapsed))

	if res.code < fiber.StatusOK || res.code >= fiber.StatusMultipleChoices {
		var body dto.ErrorBody
		_ = json.Unmarshal(res.body, &body)
		err := apperrors.NewUpstreamError(res.code, body.Text())
		logger.Debug("profile api rejected request", zap.Int("status", res.code), zap.Error(err))
		return c.fail(cl, err)
	}

	if cl.out != nil {
		if err := json.Unmarshal(res.body, cl.out); err != nil {
			return c.fail(cl, apperrors.Wrap(apperrors.CodeInternal, "decode "+cl.operation+" response", err))
		}
	}
	return nil
}

func (c *Client) fail(cl call, err error) error {
	c.metrics.RecordError(cl.operation, cl.method, apperrors.ToDomainError(err).Code)
	return err
}

// timeoutFor bounds the request by both the configured timeout and ctx's deadline.
func (c *Client) timeoutFor(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}
