package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func TestLocaleMapResolve(t *testing.T) {
	m := LocaleMap{"de_DE": "Artikel", "en_US": "Articles"}

	tests := []struct {
		name     string
		locale   string
		fallback string
		expected string
		wantErr  bool
	}{
		{"exact match", "en_US", "de_DE", "Articles", false},
		{"fallback locale", "fr_FR", "de_DE", "Artikel", false},
		{"missing everywhere", "fr_FR", "es_ES", "", true},
		{"empty value treated as missing", "empty", "de_DE", "Artikel", false},
	}

	m["empty"] = ""

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := m.Resolve(tt.locale, tt.fallback)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Resolve() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if result != tt.expected {
				t.Errorf("Resolve() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestFetchCollectionPagination(t *testing.T) {
	const total = 120
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))

		items := []json.RawMessage{}
		for i := offset; i < offset+count && i < total; i++ {
			items = append(items, json.RawMessage(fmt.Sprintf(`{"id":%d}`, i)))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": items, "itemsMax": total})
	}))
	defer server.Close()

	client := NewOJSClient(server.URL, "token", 1)
	col, err := client.fetchCollection("submissions", nil)
	if err != nil {
		t.Fatalf("fetchCollection() error = %v", err)
	}

	if len(col.Items) != total {
		t.Errorf("fetchCollection() returned %d items, want %d", len(col.Items), total)
	}
	if col.ItemsMax != total {
		t.Errorf("fetchCollection() ItemsMax = %d, want %d", col.ItemsMax, total)
	}
	if requests != 3 {
		t.Errorf("fetchCollection() made %d requests, want 3", requests)
	}
}

func TestFetchCollectionEmptyPageTerminates(t *testing.T) {
	// The server claims 100 items but only ever delivers one page. The
	// client must stop on the empty page instead of looping forever.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		items := []json.RawMessage{}
		if offset == 0 {
			for i := 0; i < pageSize; i++ {
				items = append(items, json.RawMessage(`{"id":1}`))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": items, "itemsMax": 100})
	}))
	defer server.Close()

	client := NewOJSClient(server.URL, "token", 1)
	col, err := client.fetchCollection("submissions", nil)
	if err != nil {
		t.Fatalf("fetchCollection() error = %v", err)
	}

	if len(col.Items) != pageSize {
		t.Errorf("fetchCollection() returned %d items, want %d", len(col.Items), pageSize)
	}
}

func TestFetchCollectionNonPaginated(t *testing.T) {
	payload := `{"id":7,"fullTitle":{"en_US":"A Study"},"sectionId":9}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer server.Close()

	client := NewOJSClient(server.URL, "token", 1)
	col, err := client.fetchCollection("submissions/7/publications/12", nil)
	if err != nil {
		t.Fatalf("fetchCollection() error = %v", err)
	}

	if col.Raw == nil {
		t.Fatal("fetchCollection() should return the raw payload for non-paginated endpoints")
	}
	if string(col.Raw) != payload {
		t.Errorf("fetchCollection() Raw = %s, want %s", col.Raw, payload)
	}
	if len(col.Items) != 0 {
		t.Errorf("fetchCollection() Items = %d, want 0", len(col.Items))
	}
}

func TestFetchCollectionHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("database gone"))
	}))
	defer server.Close()

	client := NewOJSClient(server.URL, "token", 1)
	_, err := client.fetchCollection("submissions", nil)
	if err == nil {
		t.Fatal("fetchCollection() should fail on HTTP 500")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("fetchCollection() error = %T, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("RequestError.StatusCode = %d, want %d", reqErr.StatusCode, http.StatusInternalServerError)
	}
	if reqErr.Body != "database gone" {
		t.Errorf("RequestError.Body = %q, want %q", reqErr.Body, "database gone")
	}
}

func TestActiveSubmissionsCached(t *testing.T) {
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("status") != strconv.Itoa(StatusQueued) {
			t.Errorf("expected status=%d filter, got %q", StatusQueued, r.URL.Query().Get("status"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":101,"stageId":1,"locale":"en_US","currentPublicationId":55}],"itemsMax":1}`))
	}))
	defer server.Close()

	client := NewOJSClient(server.URL, "token", 1)

	first, err := client.ActiveSubmissions()
	if err != nil {
		t.Fatalf("ActiveSubmissions() error = %v", err)
	}
	second, err := client.ActiveSubmissions()
	if err != nil {
		t.Fatalf("ActiveSubmissions() error = %v", err)
	}

	if requests != 1 {
		t.Errorf("ActiveSubmissions() fetched %d times, want 1", requests)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("ActiveSubmissions() = %d/%d submissions, want 1/1", len(first), len(second))
	}
	if first[0].ID != 101 || first[0].CurrentPublicationID != 55 {
		t.Errorf("ActiveSubmissions() decoded %+v", first[0])
	}
}

func TestCurrentPublication(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/submissions/101/publications/55" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":55,"fullTitle":{"en_US":"A Study"},"authorsStringShort":"A. Author","sectionId":9,"issueId":null,"_href":"https://journals.example.com/abcd/api/v1/submissions/101/publications/55"}`))
	}))
	defer server.Close()

	client := NewOJSClient(server.URL, "token", 1)
	sub := Submission{ID: 101, CurrentPublicationID: 55}

	pub, err := client.CurrentPublication(sub)
	if err != nil {
		t.Fatalf("CurrentPublication() error = %v", err)
	}

	if pub.AuthorsStringShort != "A. Author" {
		t.Errorf("AuthorsStringShort = %q", pub.AuthorsStringShort)
	}
	if pub.SectionID != 9 {
		t.Errorf("SectionID = %d, want 9", pub.SectionID)
	}
	if pub.IssueID != nil {
		t.Errorf("IssueID = %v, want nil", pub.IssueID)
	}
}

func TestSectionDeduplication(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("isPublished") == "0" {
			w.Write([]byte(`{"items":[],"itemsMax":0}`))
			return
		}
		w.Write([]byte(`{"items":[{"id":7},{"id":8}],"itemsMax":2}`))
	})
	mux.HandleFunc("/api/v1/issues/7", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"sections":[{"id":1,"title":{"en_US":"A"}},{"id":2,"title":{"en_US":"B"}}]}`))
	})
	mux.HandleFunc("/api/v1/issues/8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":8,"sections":[{"id":1,"title":{"en_US":"A"}}]}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewOJSClient(server.URL, "token", 2)
	if err := client.LoadIssuesAndSections(); err != nil {
		t.Fatalf("LoadIssuesAndSections() error = %v", err)
	}

	if client.SectionCount() != 2 {
		t.Errorf("SectionCount() = %d, want 2", client.SectionCount())
	}

	section, ok := client.SectionByID(1)
	if !ok {
		t.Fatal("SectionByID(1) not found")
	}
	if section.Title["en_US"] != "A" {
		t.Errorf("section 1 title = %q, want %q", section.Title["en_US"], "A")
	}
}

func TestIssueByID(t *testing.T) {
	client := NewOJSClient("http://localhost", "token", 1)
	client.issues = []Issue{{ID: 7, Volume: 3, Year: 2024}}

	issue, ok := client.IssueByID(7)
	if !ok {
		t.Fatal("IssueByID(7) not found")
	}
	if issue.Volume != 3 {
		t.Errorf("issue.Volume = %d, want 3", issue.Volume)
	}

	if _, ok := client.IssueByID(99); ok {
		t.Error("IssueByID(99) should not be found")
	}
}
