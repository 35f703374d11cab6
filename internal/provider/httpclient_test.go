package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroupMemberships(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"kc-g1","name":"editors"},{"id":"kc-g2","name":"viewers"}]`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "service-token")
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	memberships, err := client.GroupMemberships(context.Background(), "kc-1")
	if err != nil {
		t.Fatalf("GroupMemberships: %v", err)
	}
	if len(memberships) != 2 || memberships[0].ProviderID != "kc-g1" || memberships[0].Name != "editors" {
		t.Fatalf("memberships = %+v", memberships)
	}
	if gotAuth != "Bearer service-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotPath != "/users/kc-1/groups" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestUserRepresentation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "kc-1",
			"username": "jdoe",
			"email": "jdoe@example.com",
			"firstName": "Jane",
			"lastName": "Doe",
			"enabled": true,
			"attributes": {"department": ["engineering", "legacy"]}
		}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	repr, err := client.User(context.Background(), "kc-1")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if repr.Username != "jdoe" || !repr.Enabled {
		t.Fatalf("repr = %+v", repr)
	}
	if repr.Attributes["department"] != "engineering" {
		t.Fatalf("attributes = %v, want first value flattened", repr.Attributes)
	}
}

func TestUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := client.User(context.Background(), "kc-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestServerErrorMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := client.GroupMemberships(context.Background(), "kc-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestUnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, err := NewHTTPClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := client.GroupMemberships(context.Background(), "kc-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestNewHTTPClientValidation(t *testing.T) {
	if _, err := NewHTTPClient("   ", ""); err == nil {
		t.Fatal("expected error for blank base URL")
	}
}
