package aurweb

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func rpcServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestInfoFound(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rpc/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("v") != "5" || q.Get("type") != "info" || q.Get("arg") != "yay-bin" {
			t.Errorf("query = %v", q)
		}
		fmt.Fprint(w, `{
			"resultcount": 1,
			"type": "multiinfo",
			"results": [{
				"Name": "yay-bin",
				"Version": "12.1.0-1",
				"URLPath": "/cgit/aur.git/snapshot/yay-bin.tar.gz"
			}]
		}`)
	})

	info, err := NewClient(srv.URL).Info(context.Background(), "yay-bin")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info == nil {
		t.Fatal("Info returned nil for a known package")
	}
	if info.Name != "yay-bin" || info.Version != "12.1.0-1" {
		t.Errorf("info = %+v", info)
	}
	if info.URLPath != "/cgit/aur.git/snapshot/yay-bin.tar.gz" {
		t.Errorf("url path = %q", info.URLPath)
	}
}

func TestInfoNotFound(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultcount": 0, "type": "multiinfo", "results": []}`)
	})

	info, err := NewClient(srv.URL).Info(context.Background(), "no-such-package")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info != nil {
		t.Errorf("info = %+v, want nil for an unknown package", info)
	}
}

func TestInfoRPCError(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultcount": 0, "type": "error", "results": [], "error": "Incorrect by field specified."}`)
	})

	if _, err := NewClient(srv.URL).Info(context.Background(), "x"); err == nil {
		t.Fatal("rpc error not surfaced")
	}
}

func TestInfoUnexpectedStatus(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := NewClient(srv.URL).Info(context.Background(), "x"); err == nil {
		t.Fatal("bad status not surfaced")
	}
}

func TestVersionStripsEpoch(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"resultcount": 1,
			"type": "multiinfo",
			"results": [{"Name": "vlc-git", "Version": "2:3.0.20-1", "URLPath": "/p"}]
		}`)
	})

	version, err := NewClient(srv.URL).Version(context.Background(), "vlc-git")
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != "3.0.20-1" {
		t.Errorf("version = %q, want epoch stripped", version)
	}
}

func TestVersionUnknownPackage(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultcount": 0, "type": "multiinfo", "results": []}`)
	})

	version, err := NewClient(srv.URL).Version(context.Background(), "no-such-package")
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != "" {
		t.Errorf("version = %q, want empty for an unknown package", version)
	}
}

func TestSnapshotDownloads(t *testing.T) {
	srv := rpcServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cgit/aur.git/snapshot/yay-bin.tar.gz" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, "tarball-bytes")
	})

	var buf bytes.Buffer
	err := NewClient(srv.URL).Snapshot(context.Background(), "/cgit/aur.git/snapshot/yay-bin.tar.gz", &buf)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if buf.String() != "tarball-bytes" {
		t.Errorf("body = %q", buf.String())
	}
}

func TestNewClientDefaultsBaseURL(t *testing.T) {
	c := NewClient("")
	if c.baseURL != DefaultBaseURL {
		t.Errorf("base url = %q, want %q", c.baseURL, DefaultBaseURL)
	}
	c = NewClient("https://aur.example.org/")
	if c.baseURL != "https://aur.example.org" {
		t.Errorf("trailing slash not trimmed: %q", c.baseURL)
	}
}
