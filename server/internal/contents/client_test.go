package contents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(Options{BaseURL: url, Owner: "acme", Repo: "counter", Token: "ghp_test"})
}

func TestGetFileSendsHeadersAndRef(t *testing.T) {
	var gotAuth, gotAccept, gotPath, gotRef string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotPath = r.URL.Path
		gotRef = r.URL.Query().Get("ref")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"counter.txt","path":"data/counter.txt","sha":"abc123","size":2,"encoding":"base64","content":"NDE=\n"}`))
	}))
	defer ts.Close()

	f, err := newTestClient(ts.URL).GetFile(context.Background(), "data/counter.txt", "counter-data")
	require.NoError(t, err)

	assert.Equal(t, "token ghp_test", gotAuth)
	assert.Equal(t, "application/vnd.github.v3+json", gotAccept)
	assert.Equal(t, "/repos/acme/counter/contents/data/counter.txt", gotPath)
	assert.Equal(t, "counter-data", gotRef)
	assert.Equal(t, "abc123", f.SHA)
	assert.Equal(t, "NDE=\n", f.Content)
}

func TestGetFileNonSuccessReturnsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).GetFile(context.Background(), "data/counter.txt", "counter-data")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not Found", apiErr.StatusText())
	assert.Equal(t, `{"message":"Not Found"}`, string(apiErr.Body))
	assert.False(t, apiErr.Conflict())
}

func TestUpdateFileSendsConditionalBody(t *testing.T) {
	var got UpdateRequest
	var method, contentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":{"sha":"def456","path":"data/counter.txt"},"commit":{"sha":"c0ffee","message":"Update counter to 42"}}`))
	}))
	defer ts.Close()

	res, err := newTestClient(ts.URL).UpdateFile(context.Background(), "data/counter.txt", UpdateRequest{
		Message: "Update counter to 42",
		Content: "NDI=",
		SHA:     "abc123",
		Branch:  "counter-data",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, UpdateRequest{Message: "Update counter to 42", Content: "NDI=", SHA: "abc123", Branch: "counter-data"}, got)
	assert.Equal(t, "def456", res.Content.SHA)
	assert.Equal(t, "c0ffee", res.Commit.SHA)
}

func TestUpdateFileConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"data/counter.txt does not match abc123"}` + "\n"))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).UpdateFile(context.Background(), "data/counter.txt", UpdateRequest{SHA: "abc123"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Conflict())
	assert.Equal(t, `{"message":"data/counter.txt does not match abc123"}`, string(apiErr.Body))
}

func TestErrorBodyIsCapped(t *testing.T) {
	big := make([]byte, 3*errBodyLimit)
	for i := range big {
		big[i] = 'x'
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(big)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).GetFile(context.Background(), "a.txt", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, apiErr.Body, errBodyLimit)
}

func TestTimeoutApplies(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	c := NewClient(Options{BaseURL: ts.URL, Owner: "acme", Repo: "counter", Token: "t", Timeout: 50 * time.Millisecond})
	_, err := c.GetFile(context.Background(), "data/counter.txt", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github request")
}

func TestFileURLEscapesSegments(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://gh.local/", Owner: "acme", Repo: "counter"})
	assert.Equal(t, "http://gh.local/repos/acme/counter/contents/data/my%20counter.txt", c.fileURL("/data/my counter.txt"))
}
