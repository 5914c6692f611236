package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireBearer_ValidToken(t *testing.T) {
	agent := NewSecureAgent("secret")
	token, _ := agent.IssueToken()

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	RequireBearer(agent, NewOpenPaths(), testLogger())(next).ServeHTTP(w, r)

	if w.Code != http.StatusOK || !called {
		t.Fatalf("expected request to pass through, got status %d called=%v", w.Code, called)
	}
}

func TestRequireBearer_MissingHeader(t *testing.T) {
	agent := NewSecureAgent("secret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	})

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	RequireBearer(agent, NewOpenPaths(), testLogger())(next).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireBearer_InvalidToken(t *testing.T) {
	agent := NewSecureAgent("secret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	})

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	RequireBearer(agent, NewOpenPaths(), testLogger())(next).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireBearer_OpenPathBypassesAuth(t *testing.T) {
	agent := NewSecureAgent("secret")
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	RequireBearer(agent, NewOpenPaths("/health", "/docs"), testLogger())(next).ServeHTTP(w, r)

	if w.Code != http.StatusOK || !called {
		t.Fatalf("expected open path to bypass auth, got status %d called=%v", w.Code, called)
	}
}
