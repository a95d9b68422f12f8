package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkeye/Converse/internal/app/orch"
)

func TestFetchAndRenderStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(orch.Stats{Online: 4, Waiting: 1, Sessions: 1, Connections: 5, Policy: "fifo"})
	}))
	defer srv.Close()

	st, err := fetchStats(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if st.Online != 4 || st.Policy != "fifo" {
		t.Fatalf("%+v", st)
	}

	var buf bytes.Buffer
	renderStats(&buf, st)
	out := buf.String()
	for _, want := range []string{"Online", "4", "Waiting", "fifo"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
}

func TestFetchStatsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := fetchStats(context.Background(), srv.URL); err == nil {
		t.Fatal("want error")
	}
}
