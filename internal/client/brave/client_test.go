package brave

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/res/v1/web/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "go generics" || r.URL.Query().Get("count") != "3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Subscription-Token") != "key" {
			t.Errorf("token header = %q", r.Header.Get("X-Subscription-Token"))
		}
		io.WriteString(w, `{"web":{"results":[
			{"title":"A","description":"first","url":"https://a"},
			{"title":"B","description":"","url":"https://b"},
			{"title":"C","description":"third","url":"https://c"},
			{"title":"D","description":"fourth","url":"https://d"},
			{"title":"E","description":"fifth","url":"https://e"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", BaseURL: srv.URL})
	got, err := c.Search(context.Background(), "go generics", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	var urls []string
	for _, r := range got {
		urls = append(urls, r.URL)
	}
	if strings.Join(urls, ",") != "https://a,https://c,https://d" {
		t.Errorf("urls = %v", urls)
	}
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Search(context.Background(), "x", 3)
	if err == nil || !strings.Contains(err.Error(), "http status 401") {
		t.Errorf("Search() error = %v", err)
	}
}
