package pexels

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dubclip/dubclip/internal/faults"
)

const searchBody = `{
  "videos": [
    {
      "id": 101,
      "duration": 12,
      "video_files": [
        {"height": 720, "file_type": "video/mp4", "link": "%[1]s/files/101-720.mp4"},
        {"height": 1920, "file_type": "video/mp4", "link": "%[1]s/files/101-1920.mp4"}
      ]
    },
    {
      "id": 102,
      "duration": 30,
      "video_files": [
        {"height": 1920, "file_type": "video/mp4", "link": "%[1]s/files/102-1920.mp4"}
      ]
    },
    {
      "id": 103,
      "duration": 45,
      "video_files": [
        {"height": 720, "file_type": "video/mp4", "link": "%[1]s/files/103-720.mp4"}
      ]
    }
  ]
}`

func TestFetchBackgroundPicksLongestTallClip(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/videos/search":
			if r.Header.Get("Authorization") != "pexels-key" {
				t.Errorf("missing authorization header")
			}
			if got := r.URL.Query().Get("orientation"); got != "portrait" {
				t.Errorf("orientation = %q", got)
			}
			fmt.Fprintf(w, searchBody, srvURL)
		case r.URL.Path == "/files/102-1920.mp4":
			w.Write([]byte("video bytes"))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	a, err := New("pexels-key", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir := t.TempDir()
	path, dur, err := a.FetchBackground(context.Background(), "nature", dir)
	if err != nil {
		t.Fatalf("FetchBackground: %v", err)
	}
	// 103 is longer but has no rendition tall enough; 102 wins.
	if dur != 30*time.Second {
		t.Fatalf("duration = %v, want 30s", dur)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(b) != "video bytes" {
		t.Fatalf("downloaded content = %q", b)
	}
}

func TestFetchBackgroundNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"videos": []}`)
	}))
	defer srv.Close()

	a, err := New("k", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _, err = a.FetchBackground(context.Background(), "obscure theme", t.TempDir())
	if err == nil {
		t.Fatal("want error when search is empty")
	}
	if faults.KindOf(err) != faults.InsufficientBackground {
		t.Fatalf("kind = %v, want InsufficientBackground", faults.KindOf(err))
	}
	if faults.IsTransient(err) {
		t.Fatal("empty result set is not transient")
	}
}

func TestFetchBackgroundRateLimitTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, err := New("k", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _, err = a.FetchBackground(context.Background(), "nature", t.TempDir())
	if err == nil {
		t.Fatal("want error on 429")
	}
	if !faults.IsTransient(err) {
		t.Fatalf("429 should be transient, got %v", err)
	}
}
