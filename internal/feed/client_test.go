package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleDoc = `{
  "type": "FeatureCollection",
  "features": [
    {
      "properties": {
        "alert": "red",
        "place": "10km SSW of Idyllwild, CA",
        "mag": 5.0,
        "url": "https://earthquake.usgs.gov/earthquakes/eventpage/abc",
        "time": 1700000000000,
        "tsunami": 1,
        "sig": 600,
        "code": "abc"
      },
      "geometry": {"coordinates": [-116.67, 33.71, 10.16]}
    }
  ]
}`

func TestFetchDecodesDocument(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleDoc))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	doc, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(doc.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(doc.Features))
	}
	p := doc.Features[0].Properties
	if p.Mag.String() != "5.0" {
		t.Fatalf("mag text = %q, want %q", p.Mag.String(), "5.0")
	}
	if p.Code != "abc" || p.Time != 1700000000000 {
		t.Fatalf("unexpected properties: %+v", p)
	}
	if doc.Features[0].Geometry.Lon() != -116.67 {
		t.Fatalf("lon = %v, want -116.67", doc.Features[0].Geometry.Lon())
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream sad", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("want error on non-200 status")
	}
}

func TestFetchUndecodableBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("want error on undecodable body")
	}
}

func TestFetchEmptyFeatures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	doc, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(doc.Features) != 0 {
		t.Fatalf("features = %d, want 0", len(doc.Features))
	}
}

func TestFetchHonorsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Fetch(context.Background())
	if err == nil {
		t.Fatal("want timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout not honored")
	}
}
