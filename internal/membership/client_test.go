package membership

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cooklab/api/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.MembershipConfig{
		BaseURL: srv.URL,
		APIKey:  "ms_test_key",
		Timeout: 2 * time.Second,
	}, nil)
}

func TestGrantPlanSuccess(t *testing.T) {
	var gotKey, gotEmail, gotPlan string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		var req struct {
			Email  string `json:"email"`
			PlanID string `json:"plan_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotEmail, gotPlan = req.Email, req.PlanID
		w.WriteHeader(http.StatusCreated)
	})

	err := c.GrantPlan(context.Background(), "cook@example.com", "plan_course_en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "ms_test_key" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if gotEmail != "cook@example.com" || gotPlan != "plan_course_en" {
		t.Errorf("unexpected payload: %s / %s", gotEmail, gotPlan)
	}
}

func TestGrantPlanAlreadyGrantedIsNoOp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	if err := c.GrantPlan(context.Background(), "cook@example.com", "plan_x"); err != nil {
		t.Fatalf("409 must be treated as success, got %v", err)
	}
}

func TestGrantPlanErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			err := c.GrantPlan(context.Background(), "cook@example.com", "plan_x")
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var transient *TransientError
			if got := errors.As(err, &transient); got != tt.wantTransient {
				t.Errorf("transient = %v, want %v (err: %v)", got, tt.wantTransient, err)
			}
			if !tt.wantTransient {
				if !errors.Is(err, ErrPlanRejected) {
					t.Errorf("expected ErrPlanRejected, got %v", err)
				}
				// The retry helper classifies on this signal; a rejection
				// without it would be retried.
				var permanent *PermanentError
				if !errors.As(err, &permanent) {
					t.Fatalf("expected PermanentError, got %v", err)
				}
				if permanent.Temporary() {
					t.Error("permanent rejection must report Temporary() == false")
				}
			}
		})
	}
}

func TestGrantPlanNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force connection refused

	c := NewClient(config.MembershipConfig{
		BaseURL: srv.URL,
		APIKey:  "ms_test_key",
		Timeout: time.Second,
	}, nil)

	err := c.GrantPlan(context.Background(), "cook@example.com", "plan_x")
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Errorf("expected TransientError, got %v", err)
	}
}
