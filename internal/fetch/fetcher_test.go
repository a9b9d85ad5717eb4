package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchText_SendsUserAgentAndDecodesCharset(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<p>D\xe9cision</p>"))
	}))
	defer srv.Close()

	c := New(Options{HTTPClient: srv.Client()})
	body, err := c.FetchText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchText: %v", err)
	}
	if body != "<p>Décision</p>" {
		t.Errorf("body = %q, want decoded UTF-8", body)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
}

func TestFetchText_CustomUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Options{HTTPClient: srv.Client(), UserAgent: "caiarchive-test"})
	if _, err := c.FetchText(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if gotUA != "caiarchive-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Options{HTTPClient: srv.Client()})
	if _, err := c.FetchText(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 listing")
	} else if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), srv.URL) {
		t.Errorf("error = %q, want status and URL", err)
	}
	if _, err := c.FetchBinary(context.Background(), srv.URL+"/doc.pdf"); err == nil {
		t.Fatal("expected error for 404 document")
	}
}

func TestFetch_Timeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(Options{
		HTTPClient:     srv.Client(),
		ListingTimeout: 50 * time.Millisecond,
		PDFTimeout:     50 * time.Millisecond,
	})

	start := time.Now()
	if _, err := c.FetchText(context.Background(), srv.URL); err == nil {
		t.Fatal("expected listing timeout")
	}
	if _, err := c.FetchBinary(context.Background(), srv.URL); err == nil {
		t.Fatal("expected document timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeouts took %v, want well under 1s", elapsed)
	}
}

func TestFetchBinary(t *testing.T) {
	payload := []byte("%PDF-1.4\x00\x01binary")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(payload)
	}))
	defer srv.Close()

	c := New(Options{HTTPClient: srv.Client()})
	got, err := c.FetchBinary(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchBinary: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestFetch_OversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 65))
	}))
	defer srv.Close()

	c := New(Options{HTTPClient: srv.Client(), MaxListingSize: 64, MaxPDFSize: 64})

	if _, err := c.FetchBinary(context.Background(), srv.URL); !errors.Is(err, ErrTooLarge) {
		t.Errorf("FetchBinary err = %v, want ErrTooLarge", err)
	}
	if _, err := c.FetchText(context.Background(), srv.URL); !errors.Is(err, ErrTooLarge) {
		t.Errorf("FetchText err = %v, want ErrTooLarge", err)
	}
}

func TestFetch_BodyAtLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	c := New(Options{HTTPClient: srv.Client(), MaxPDFSize: 64})
	got, err := c.FetchBinary(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchBinary: %v", err)
	}
	if len(got) != len(payload) {
		t.Errorf("len = %d, want %d", len(got), len(payload))
	}
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{})
	if _, err := c.FetchText(context.Background(), url); err == nil {
		t.Fatal("expected error for closed server")
	}
}
