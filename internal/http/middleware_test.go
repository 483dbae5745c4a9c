package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/application"
)

type stubVerifier struct {
	actor application.Actor
	err   error
	token string
}

func (s *stubVerifier) Verify(token string) (application.Actor, error) {
	s.token = token
	return s.actor, s.err
}

func TestRequireActor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		verifier   *stubVerifier
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "missing header",
			verifier:   &stubVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non bearer scheme",
			header:     "Basic abc",
			verifier:   &stubVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			header:     "Bearer broken",
			verifier:   &stubVerifier{err: ErrInvalidToken},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "verifier failure",
			header:     "Bearer token",
			verifier:   &stubVerifier{err: errors.New("keystore offline")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "valid token",
			header:     "bearer token-1",
			verifier:   &stubVerifier{actor: application.Actor{UserID: "teacher-1", Role: access.RoleTeacher}},
			wantStatus: http.StatusNoContent,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			handler := RequireActor(tt.verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				actor, ok := ActorFromContext(r.Context())
				if !ok || actor != tt.verifier.actor {
					t.Errorf("expected actor %#v in context, got %#v", tt.verifier.actor, actor)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, recorder.Code)
			}
			if called != tt.wantCalled {
				t.Fatalf("expected next handler called=%v", tt.wantCalled)
			}
			if tt.wantCalled && tt.verifier.token != "token-1" {
				t.Fatalf("expected token to be extracted, got %q", tt.verifier.token)
			}
		})
	}
}

func TestJWTVerifier(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	issued := time.Now()
	verifier := NewJWTVerifier(secret)

	t.Run("round trips actor claims", func(t *testing.T) {
		t.Parallel()
		token, err := SignActorToken(secret, application.Actor{UserID: "student-1", Role: access.RoleStudent}, issued, time.Hour)
		if err != nil {
			t.Fatalf("SignActorToken failed: %v", err)
		}
		actor, err := verifier.Verify(token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if actor.UserID != "student-1" || actor.Role != access.RoleStudent {
			t.Fatalf("unexpected actor %#v", actor)
		}
	})

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				token, err := SignActorToken([]byte("other"), application.Actor{UserID: "u", Role: access.RoleAdmin}, issued, time.Hour)
				if err != nil {
					t.Fatal(err)
				}
				return token
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				token, err := SignActorToken(secret, application.Actor{UserID: "u", Role: access.RoleAdmin}, issued.Add(-2*time.Hour), time.Hour)
				if err != nil {
					t.Fatal(err)
				}
				return token
			},
		},
		{
			name: "unknown role",
			token: func(t *testing.T) string {
				token, err := SignActorToken(secret, application.Actor{UserID: "u", Role: "janitor"}, issued, time.Hour)
				if err != nil {
					t.Fatal(err)
				}
				return token
			},
		},
		{
			name:  "garbage",
			token: func(*testing.T) string { return "not-a-jwt" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := verifier.Verify(tt.token(t)); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Error("expected request logger in context")
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
	req.Header.Set("X-Request-ID", "req-1")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("X-Request-ID"); got != "req-1" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}
