package hosting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecodePrepareResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    PrepareReply
		wantErr bool
	}{
		{
			name: "confirmed",
			body: `{"app_prefix":"app-1","reply":{"key":"todo","api_url":"https://api","deploy_url":"https://todo"}}`,
			want: Confirmed{Key: "todo", APIURL: "https://api", DeployURL: "https://todo"},
		},
		{
			name: "existing",
			body: `{"app_prefix":"app-1","existing":[{"key":"old","api_url":"a","deploy_url":"d"}],"unknown":1}`,
			want: Existing{Deployments: []Endpoint{{Key: "old", APIURL: "a", DeployURL: "d"}}},
		},
		{
			name: "suggestion",
			body: `{"app_prefix":"app-1","suggestion":{"key":"todo-2","api_url":"a","deploy_url":"d"}}`,
			want: Suggestion{Key: "todo-2", APIURL: "a", DeployURL: "d"},
		},
		{name: "no branch", body: `{"app_prefix":"app-1"}`, wantErr: true},
		{name: "empty existing", body: `{"app_prefix":"app-1","existing":[]}`, wantErr: true},
		{
			name:    "two branches",
			body:    `{"reply":{"key":"a"},"suggestion":{"key":"b"}}`,
			wantErr: true,
		},
		{name: "garbage", body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePrepareResponse([]byte(tt.body))
			if tt.wantErr {
				var hErr *Error
				if !errors.As(err, &hErr) || !hErr.IsType(ErrorTypeValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.AppPrefix != "app-1" {
				t.Errorf("AppPrefix = %q; want app-1", got.AppPrefix)
			}
			if !replyEqual(got.Reply, tt.want) {
				t.Errorf("Reply = %#v; want %#v", got.Reply, tt.want)
			}
		})
	}
}

func replyEqual(a, b PrepareReply) bool {
	ea, okA := a.(Existing)
	eb, okB := b.(Existing)
	if okA || okB {
		if !(okA && okB) || len(ea.Deployments) != len(eb.Deployments) {
			return false
		}
		for i := range ea.Deployments {
			if ea.Deployments[i] != eb.Deployments[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func TestPrepareDeploySendsTokenAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/deployments/prepare" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in["app_name"] != "todo" || in["key"] != "k1" {
			t.Errorf("body = %v", in)
		}
		io.WriteString(w, `{"app_prefix":"p","reply":{"key":"k1","api_url":"a","deploy_url":"d"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithToken("secret"))
	resp, err := c.PrepareDeploy(context.Background(), "todo", "k1", "")
	if err != nil {
		t.Fatalf("PrepareDeploy: %v", err)
	}
	if _, ok := resp.Reply.(Confirmed); !ok {
		t.Errorf("Reply = %T; want Confirmed", resp.Reply)
	}
}

func TestDeployUploadsMultipart(t *testing.T) {
	dir := t.TempDir()
	frontend := filepath.Join(dir, "frontend.zip")
	backend := filepath.Join(dir, "backend.zip")
	os.WriteFile(frontend, []byte("front"), 0o644)
	os.WriteFile(backend, []byte("back"), 0o644)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		var meta DeployRequest
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
			t.Fatalf("metadata: %v", err)
		}
		if meta.Key != "k1" || len(meta.Regions) != 1 || meta.Envs["A"] != "1" {
			t.Errorf("metadata = %+v", meta)
		}
		for field, want := range map[string]string{"frontend": "front", "backend": "back"} {
			f, _, err := r.FormFile(field)
			if err != nil {
				t.Fatalf("FormFile(%s): %v", field, err)
			}
			data, _ := io.ReadAll(f)
			if string(data) != want {
				t.Errorf("%s = %q; want %q", field, data, want)
			}
		}
		io.WriteString(w, `{"backend_url":"https://b","frontend_url":"https://f"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Deploy(context.Background(), DeployRequest{
		Key:          "k1",
		Regions:      []string{"sjc"},
		Envs:         map[string]string{"A": "1"},
		FrontendFile: frontend,
		BackendFile:  backend,
	})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if resp.BackendURL != "https://b" || resp.FrontendURL != "https://f" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDeployMissingArchive(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:0").Deploy(context.Background(), DeployRequest{Key: "k"})
	if err == nil {
		t.Fatal("expected error for missing archives")
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
		ok      bool
	}{
		{status: http.StatusOK, ok: true},
		{status: http.StatusForbidden, wantErr: ErrInvalidToken},
		{status: http.StatusUnauthorized, wantErr: ErrInvalidToken},
		{status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		err := NewClient(srv.URL, WithHTTPClient(srv.Client())).ValidateToken(context.Background(), "t")
		srv.Close()

		switch {
		case tt.ok && err != nil:
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
			t.Errorf("status %d: err = %v; want %v", tt.status, err, tt.wantErr)
		case !tt.ok && tt.wantErr == nil && (err == nil || errors.Is(err, ErrInvalidToken)):
			t.Errorf("status %d: err = %v; want a retryable error", tt.status, err)
		}
	}
}

func TestFetchTokenPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("request_id") == "ready" {
			io.WriteString(w, `{"access_token":"tok","code":"c"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.FetchToken(context.Background(), "pending"); err == nil {
		t.Error("expected error while the token is pending")
	}
	tok, err := c.FetchToken(context.Background(), "ready")
	if err != nil {
		t.Fatalf("FetchToken: %v", err)
	}
	if tok.AccessToken != "tok" || tok.Code != "c" {
		t.Errorf("token = %+v", tok)
	}
}

func TestPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if !c.Poll(context.Background(), BackendPingURL(srv.URL+"/")) {
		t.Error("expected /ping to be up")
	}
	if c.Poll(context.Background(), srv.URL+"/index") {
		t.Error("expected 503 to be reported as down")
	}
	srv.Close()
	if c.Poll(context.Background(), srv.URL) {
		t.Error("expected a closed server to be reported as down")
	}
}

func TestStreamLogsOnlyDataLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/k1/logs") {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, "event: log\ndata: first\n\n: keepalive\ndata: second\n")
	}))
	defer srv.Close()

	var lines []string
	err := NewClient(srv.URL).StreamLogs(context.Background(), "k1", func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("StreamLogs: %v", err)
	}
	if strings.Join(lines, ",") != "first,second" {
		t.Errorf("lines = %v", lines)
	}
}

func TestStreamLogsOutlivesClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			fmt.Fprintf(w, "data: line %d\n", i)
			flusher.Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	defer srv.Close()

	var lines []string
	err := NewClient(srv.URL, WithTimeout(50*time.Millisecond)).StreamLogs(context.Background(), "k1", func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("StreamLogs: %v", err)
	}
	if len(lines) != 4 {
		t.Errorf("lines = %v; want 4", lines)
	}
}

func TestShortCallsUseClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithTimeout(30*time.Millisecond)).ListDeployments(context.Background())
	if !IsNetworkError(err) {
		t.Fatalf("expected a network error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v should wrap the deadline", err)
	}
}

func TestDeployNotBoundByClientTimeout(t *testing.T) {
	dir := t.TempDir()
	frontend := filepath.Join(dir, "frontend.zip")
	backend := filepath.Join(dir, "backend.zip")
	os.WriteFile(frontend, []byte(strings.Repeat("f", 256*1024)), 0o644)
	os.WriteFile(backend, []byte("back"), 0o644)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a slow reader
		time.Sleep(100 * time.Millisecond)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("frontend")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if len(data) != 256*1024 {
			t.Errorf("frontend size = %d", len(data))
		}
		io.WriteString(w, `{"backend_url":"https://b","frontend_url":"https://f"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, WithTimeout(20*time.Millisecond)).Deploy(context.Background(), DeployRequest{
		Key:          "k1",
		Regions:      []string{"sjc"},
		FrontendFile: frontend,
		BackendFile:  backend,
	})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if resp.FrontendURL != "https://f" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDeployMissingArchiveFile(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Deploy(context.Background(), DeployRequest{
		Key:          "k",
		FrontendFile: filepath.Join(t.TempDir(), "missing.zip"),
		BackendFile:  filepath.Join(t.TempDir(), "missing.zip"),
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v; want os.ErrNotExist", err)
	}
	if called {
		t.Error("nothing should be sent when an archive is missing")
	}
}

func TestWrapHTTPErrorClassifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "no access")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListDeployments(context.Background())
	if !IsAuthenticationError(err) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no access") {
		t.Errorf("error %q should carry the response body", err)
	}
}
