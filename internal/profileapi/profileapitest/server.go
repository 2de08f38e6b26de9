// Package profileapitest runs an in-process fake of the staff profile backend
// on a loopback listener.
package profileapitest

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/staff-profile/internal/api/dto"
	"github.com/spec-kit/staff-profile/internal/auth"
	apperrors "github.com/spec-kit/staff-profile/pkg/util/errorutil"
)

// Request is one call observed by the fake.
type Request struct {
	Method        string
	Path          string
	Body          []byte
	Authorization string
	RequestID     string
}

// Option customizes a Server.
type Option func(*Server)

// WithTokenManager makes the fake require a bearer token whose `_id` matches
// the staff id in the path.
func WithTokenManager(tm *auth.TokenManager) Option {
	return func(s *Server) { s.tokens = tm }
}

// Server is a fake of the staff profile backend.
type Server struct {
	URL string

	app    *fiber.App
	tokens *auth.TokenManager

	mu        sync.Mutex
	profiles  map[string]dto.ProfilePayload
	passwords map[string]string
	requests  []Request
	failures  map[string]failure
	hold      chan struct{}
}

type failure struct {
	status  int
	message string
}

// NewServer starts the fake and stops it when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		profiles:  map[string]dto.ProfilePayload{},
		passwords: map[string]string{},
		failures:  map[string]failure{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.app.Use(s.errorHandlingMiddleware)
	s.app.Use(s.recordMiddleware)

	staff := s.app.Group("/staff")
	if s.tokens != nil {
		staff.Use(s.authMiddleware)
	}
	staff.Get("/profile/:id", s.getProfile)
	staff.Put("/profile/:id", s.updateProfile)
	staff.Put("/change-password/:id", s.changePassword)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("profileapitest: listen: %v", err)
	}
	s.URL = "http://" + ln.Addr().String()

	go func() {
		_ = s.app.Listener(ln)
	}()
	t.Cleanup(func() {
		s.Release()
		_ = s.app.Shutdown()
	})
	return s
}

// AddStaff seeds a profile and, when password is not empty, its password.
func (s *Server) AddStaff(id string, profile dto.ProfilePayload, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = profile
	if password != "" {
		hash, err := auth.HashPassword(password, bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		s.passwords[id] = hash
	}
}

// Profile returns the stored profile.
func (s *Server) Profile(id string) (dto.ProfilePayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok
}

// CheckPassword reports whether password is the staff member's current password.
func (s *Server) CheckPassword(id, password string) bool {
	s.mu.Lock()
	hash, ok := s.passwords[id]
	s.mu.Unlock()
	return ok && auth.ComparePassword(hash, password) == nil
}

// Fail makes every following request for method and path prefix answer status.
// An empty message uses the status text.
func (s *Server) Fail(method, pathPrefix string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+pathPrefix] = failure{status: status, message: message}
}

// ClearFailures removes every configured failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]failure{}
}

// Hold parks every following request until Release is called.
func (s *Server) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold == nil {
		s.hold = make(chan struct{})
	}
}

// Release lets held requests proceed.
func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
}

// Requests returns a copy of the observed requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path prefix.
func (s *Server) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) recordMiddleware(c *fiber.Ctx) error {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        c.Method(),
		Path:          c.Path(),
		Body:          append([]byte(nil), c.Body()...),
		Authorization: c.Get(fiber.HeaderAuthorization),
		RequestID:     c.Get(fiber.HeaderXRequestID),
	})
	hold := s.hold
	var injected *failure
	for key, f := range s.failures {
		method, prefix, _ := strings.Cut(key, " ")
		if method == c.Method() && strings.HasPrefix(c.Path(), prefix) {
			f := f
			injected = &f
			break
		}
	}
	s.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if injected != nil {
		return apperrors.NewDomainError("INJECTED", injected.message, injected.status, nil)
	}
	return c.Next()
}

func (s *Server) errorHandlingMiddleware(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternalError(fmt.Errorf("panic: %v", r))
		}
		if err == nil {
			return
		}

		status, code, message := http.StatusInternalServerError, apperrors.CodeInternal, "internal server error"
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status, code, message = fiberErr.Code, http.StatusText(fiberErr.Code), fiberErr.Message
		} else {
			domainErr := apperrors.ToDomainError(err)
			if domainErr.HTTPStatus > 0 {
				status = domainErr.HTTPStatus
			}
			code = domainErr.Code
			message = domainErr.Message
			if message == "" {
				message = http.StatusText(status)
			}
		}

		c.Status(status)
		_ = c.JSON(fiber.Map{"error": fiber.Map{"code": code, "message": message}})
		err = nil
	}()
	return c.Next()
}

func (s *Server) authMiddleware(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
	}
	claims, err := s.tokens.ParseToken(parts[1])
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid token")
	}
	segments := strings.Split(strings.Trim(c.Path(), "/"), "/")
	if claims.StaffID != segments[len(segments)-1] {
		return fiber.NewError(http.StatusForbidden, "token does not belong to this staff member")
	}
	return c.Next()
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	profile, ok := s.Profile(c.Params("id"))
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Staff not found"})
	}
	return c.JSON(profile)
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	id := c.Params("id")
	var payload dto.ProfilePayload
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	s.mu.Lock()
	_, ok := s.profiles[id]
	if ok {
		s.profiles[id] = payload
	}
	s.mu.Unlock()

	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"message": "Staff not found"})
	}
	return c.JSON(payload)
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	id := c.Params("id")
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "current and new password required")
	}
	if !s.CheckPassword(id, req.CurrentPassword) {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "Current password is incorrect"})
	}

	hash, err := auth.HashPassword(req.NewPassword, bcrypt.MinCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	s.mu.Lock()
	s.passwords[id] = hash
	s.mu.Unlock()
	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}
