package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearchTool_MissingKey(t *testing.T) {
	tool := NewWebSearchTool(SearchConfig{})
	_, err := tool.Execute(context.Background(), map[string]any{"query": "golang"})
	if !errors.Is(err, ErrSearchNotConfigured) {
		t.Fatalf("expected ErrSearchNotConfigured, got %v", err)
	}
}

func TestWebSearchTool_MissingKeyThroughInvoker(t *testing.T) {
	inv := newTestInvoker(nil, NewWebSearchTool(SearchConfig{}))
	env := inv.Invoke(context.Background(), "web_search", map[string]any{"query": "golang"})
	if !env.IsError || !strings.Contains(env.Text(), "not configured") {
		t.Fatalf("expected clean isError envelope, got %+v", env)
	}
}

func TestWebSearchTool_Results(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("q") != "go generics" || r.URL.Query().Get("count") != "2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"web":{"results":[
			{"title":"Tutorial","url":"https://go.dev/doc/tutorial/generics","description":"Learn <strong>generics</strong>"},
			{"title":"Effective Go","url":"https://go.dev/doc/effective_go","description":"Tips"},
			{"title":"Extra","url":"https://example.com","description":"ignored"}
		]}}`)
	}))
	defer srv.Close()

	tool := NewWebSearchTool(SearchConfig{APIKey: "k", Endpoint: srv.URL, Client: srv.Client()})
	out, err := tool.Execute(context.Background(), map[string]any{"query": "go generics", "count": 2.0})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	text := out.(string)
	if !strings.Contains(text, "1. Tutorial") || !strings.Contains(text, "Learn generics") {
		t.Fatalf("unexpected output %q", text)
	}
	if strings.Contains(text, "Extra") {
		t.Fatalf("results beyond count should be dropped: %q", text)
	}
}

func TestWebSearchTool_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tool := NewWebSearchTool(SearchConfig{APIKey: "k", Endpoint: srv.URL, Client: srv.Client()})
	_, err := tool.Execute(context.Background(), map[string]any{"query": "x"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected HTTP 429 error, got %v", err)
	}
}

func TestWebFetchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>\n<h1>Title</h1>\n\n<p>Body text</p>\n</body></html>")
	}))
	defer srv.Close()

	tool := NewWebFetchTool(srv.Client())
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Title\nBody text" {
		t.Fatalf("unexpected text %q", out)
	}

	if _, err := tool.Execute(context.Background(), map[string]any{"url": "file:///etc/passwd"}); err == nil {
		t.Fatal("expected non-http scheme to be rejected")
	}
}

func TestWeatherTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/New%20York" && r.URL.Path != "/New York" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "j1" {
			t.Errorf("expected format=j1")
		}
		fmt.Fprint(w, `{
			"current_condition":[{"temp_C":"21","FeelsLikeC":"20","humidity":"40","windspeedKmph":"9","precipMM":"0.0",
				"weatherDesc":[{"value":"Sunny"}]}],
			"nearest_area":[{"areaName":[{"value":"New York"}],"region":[{"value":"New York"}],"country":[{"value":"United States of America"}]}]
		}`)
	}))
	defer srv.Close()

	out, err := NewWeatherTool(srv.URL, srv.Client()).Execute(context.Background(), map[string]any{"location": "New York"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	report := out.(WeatherReport)
	if report.Conditions != "Sunny" || report.TemperatureC != "21" {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.ResolvedArea != "New York, New York, United States of America" {
		t.Fatalf("unexpected area %q", report.ResolvedArea)
	}
}

func TestWeatherTool_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"current_condition":[]}`)
	}))
	defer srv.Close()

	if _, err := NewWeatherTool(srv.URL, srv.Client()).Execute(context.Background(), map[string]any{"location": "Atlantis"}); err == nil {
		t.Fatal("expected error when no conditions are returned")
	}
}

func TestSportsTool(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/key/searchteams.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("t") != "Arsenal" {
			fmt.Fprint(w, `{"teams":null}`)
			return
		}
		fmt.Fprint(w, `{"teams":[{"idTeam":"133604","strTeam":"Arsenal","strLeague":"English Premier League"}]}`)
	})
	mux.HandleFunc("/key/eventslast.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "133604" {
			t.Errorf("unexpected team id %q", r.URL.Query().Get("id"))
		}
		fmt.Fprint(w, `{"results":[{"strEvent":"Arsenal vs Chelsea","dateEvent":"2024-04-23",
			"strHomeTeam":"Arsenal","strAwayTeam":"Chelsea","intHomeScore":"5","intAwayScore":"0"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tool := NewSportsTool(SportsConfig{APIKey: "key", Endpoint: srv.URL, Client: srv.Client()})
	out, err := tool.Execute(context.Background(), map[string]any{"team": "Arsenal"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res := out.(TeamResults)
	if res.Team != "Arsenal" || len(res.Matches) != 1 || res.Matches[0].HomeScore != "5" {
		t.Fatalf("unexpected results %+v", res)
	}

	if _, err := tool.Execute(context.Background(), map[string]any{"team": "Nobody FC"}); err == nil {
		t.Fatal("expected error for unknown team")
	}
}
