package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLookupDecodesIPAPIResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/8.8.8.8" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"success","country":"United States","countryCode":"US","city":"Mountain View","lat":37.4,"lon":-122.1,"isp":"Google LLC"}`))
	}))
	defer server.Close()

	client := NewIPAPIClient(server.URL+"/json/", time.Second)
	metadata, err := client.Lookup(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if metadata.CountryCode != "US" || metadata.City != "Mountain View" || metadata.Longitude != -122.1 {
		t.Fatalf("unexpected metadata %+v", metadata)
	}
}

func TestLookupSkipsPrivateAddresses(t *testing.T) {
	client := NewIPAPIClient("http://unused.invalid/json/", time.Second)
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.10", "::1"} {
		if _, err := client.Lookup(context.Background(), ip); !errors.Is(err, ErrNotRoutable) {
			t.Fatalf("expected %s to be skipped, got %v", ip, err)
		}
	}
}

func TestLookupReportsFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer server.Close()

	client := NewIPAPIClient(server.URL, time.Second)
	if _, err := client.Lookup(context.Background(), "1.1.1.1"); err == nil {
		t.Fatal("expected failure status to surface as error")
	}
}
