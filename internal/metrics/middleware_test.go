package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRouterServesMetrics(t *testing.T) {
	Init()
	ts := httptest.NewServer(NewRouter())
	defer ts.Close()

	ObserveListingPage(OutcomeOK)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	if errClose := resp.Body.Close(); errClose != nil {
		t.Log(errClose)
	}
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "outreach_listing_pages_total") {
		t.Error("metrics output missing outreach_listing_pages_total")
	}

	resp, err = http.Get(ts.URL + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	if errClose := resp.Body.Close(); errClose != nil {
		t.Log(errClose)
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val < 1 {
		t.Errorf("expected a 200 request to be counted, got %f", val)
	}
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")); val < 1 {
		t.Errorf("expected a 404 request to be counted, got %f", val)
	}
}
