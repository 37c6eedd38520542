package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSMSClientSend(t *testing.T) {
	var got map[string]string
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewHTTPSMSClient(srv.URL+"/", "key-1", "RESETS", "+91")
	if err := c.Send(context.Background(), SMS{To: "9876543210", Body: "code 482913"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if path != "/messages" {
		t.Fatalf("expected /messages, got %s", path)
	}
	if auth != "Bearer key-1" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got["to"] != "+919876543210" || got["from"] != "RESETS" || got["message"] != "code 482913" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestHTTPSMSClientKeepsInternationalNumbers(t *testing.T) {
	c := NewHTTPSMSClient("http://gateway", "", "", "+91")
	if got := c.e164("+447700900123"); got != "+447700900123" {
		t.Fatalf("e164 rewrote an international number: %s", got)
	}
}

func TestHTTPSMSClientGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPSMSClient(srv.URL, "key", "RESETS", "")
	err := c.Send(context.Background(), SMS{To: "+15550100", Body: "x"})
	if err == nil || !strings.Contains(err.Error(), "status=429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected gateway error with status and body, got %v", err)
	}
}

func TestHTTPSMSClientRequiresRecipient(t *testing.T) {
	c := NewHTTPSMSClient("http://gateway", "key", "RESETS", "+91")
	if err := c.Send(context.Background(), SMS{To: "  "}); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}
