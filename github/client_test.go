package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient returns a client pointed at a mux that already serves the
// token exchange endpoint.
func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()

	mux.HandleFunc("POST /app/installations/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_test",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	_, pemBytes := testPrivateKey(t)
	tokens, err := NewTokenManager(42, pemBytes, discardLogger())
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	client := NewClient(tokens)
	client.SetBaseURL(server.URL)
	return client, server
}

func TestGetPullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer ghs_test" {
			t.Errorf("Authorization = %q, want installation token", auth)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     999,
			"number": 7,
			"state":  "open",
			"title":  "Add feature",
			"head":   map[string]any{"sha": "abc123"},
			"user":   map[string]any{"login": "octocat"},
		})
	})
	client, _ := newTestClient(t, mux)

	pr, err := client.GetPullRequest(context.Background(), 55, "acme", "widgets", 7)
	if err != nil {
		t.Fatalf("GetPullRequest: %v", err)
	}
	if pr.ID != 999 || pr.Number != 7 || pr.Head.SHA != "abc123" {
		t.Errorf("unexpected pull request: %+v", pr)
	}
}

func TestGetPullRequestNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	})
	client, _ := newTestClient(t, mux)

	_, err := client.GetPullRequest(context.Background(), 55, "acme", "widgets", 7)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
}

func TestListPullRequestFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"filename": "app.py", "status": "modified", "contents_url": "https://example.test/app.py"},
			{"filename": "new.py", "status": "added"},
		})
	})
	client, _ := newTestClient(t, mux)

	files, err := client.ListPullRequestFiles(context.Background(), 55, "acme", "widgets", 7)
	if err != nil {
		t.Fatalf("ListPullRequestFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if files[0].Filename != "app.py" || files[0].Status != "modified" {
		t.Errorf("unexpected file: %+v", files[0])
	}
}

func TestFetchRawContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "application/vnd.github.raw" {
			t.Errorf("Accept = %q, want raw media type", accept)
		}
		w.Write([]byte("import os\n"))
	})
	client, server := newTestClient(t, mux)

	content, err := client.FetchRawContent(context.Background(), 55, server.URL+"/raw/app.py")
	if err != nil {
		t.Fatalf("FetchRawContent: %v", err)
	}
	if content != "import os\n" {
		t.Errorf("content = %q", content)
	}
}

func TestFetchFileContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/contents/.github/codexlens.yml", func(w http.ResponseWriter, r *http.Request) {
		if ref := r.URL.Query().Get("ref"); ref != "abc123" {
			t.Errorf("ref = %q, want abc123", ref)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("enabled: true\n")),
		})
	})
	client, _ := newTestClient(t, mux)

	content, err := client.FetchFileContent(context.Background(), 55, "acme", "widgets", ".github/codexlens.yml", "abc123")
	if err != nil {
		t.Fatalf("FetchFileContent: %v", err)
	}
	if content != "enabled: true\n" {
		t.Errorf("content = %q", content)
	}
}

func TestFetchFileContentMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	client, _ := newTestClient(t, mux)

	content, err := client.FetchFileContent(context.Background(), 55, "acme", "widgets", "missing.yml", "")
	if err != nil {
		t.Fatalf("FetchFileContent: %v", err)
	}
	if content != "" {
		t.Errorf("content = %q, want empty for missing file", content)
	}
}

func TestCreateReview(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		var req ReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode review request: %v", err)
		}
		if req.Event != "COMMENT" {
			t.Errorf("Event = %q, want COMMENT", req.Event)
		}
		if len(req.Comments) != 1 || req.Comments[0].Path != "app.py" {
			t.Errorf("unexpected comments: %+v", req.Comments)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 321, "state": "COMMENTED"})
	})
	client, _ := newTestClient(t, mux)

	review, err := client.CreateReview(context.Background(), 55, "acme", "widgets", 7, &ReviewRequest{
		CommitID: "abc123",
		Body:     "found issues",
		Event:    "COMMENT",
		Comments: []ReviewComment{{Path: "app.py", Line: 3, Side: "RIGHT", Body: "fix this"}},
	})
	if err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	if review.ID != 321 {
		t.Errorf("ID = %d, want 321", review.ID)
	}
}
