package restapi_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/service/restapi"
)

func newClient(t *testing.T, srv *httptest.Server, auth restapi.Auth, retries int) *restapi.Client {
	t.Helper()
	c, err := restapi.New(restapi.Config{
		BaseURL:     srv.URL + "/api/1.0",
		Auth:        auth,
		HTTPClient:  srv.Client(),
		MaxRetries:  retries,
		BaseBackoff: time.Millisecond,
		RateLimit:   1000,
		RateBurst:   100,
		ErrorMessage: func(body []byte) string {
			var v struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(body, &v); err != nil {
				return string(body)
			}
			return v.Message
		},
	})
	gt.NoError(t, err).Required()
	return c
}

func TestNew(t *testing.T) {
	t.Run("requires base URL", func(t *testing.T) {
		_, err := restapi.New(restapi.Config{Auth: restapi.BearerToken{Token: "x"}})
		gt.Bool(t, errors.Is(err, restapi.ErrInvalidConfig)).True()
	})

	t.Run("requires auth", func(t *testing.T) {
		_, err := restapi.New(restapi.Config{BaseURL: "https://example.com"})
		gt.Bool(t, errors.Is(err, restapi.ErrInvalidConfig)).True()
	})

	t.Run("rejects relative base URL", func(t *testing.T) {
		_, err := restapi.New(restapi.Config{BaseURL: "example.com/api", Auth: restapi.BearerToken{Token: "x"}})
		gt.Bool(t, errors.Is(err, restapi.ErrInvalidConfig)).True()
	})
}

func TestAuthHeaders(t *testing.T) {
	testCases := []struct {
		name string
		auth restapi.Auth
		want string
	}{
		{
			name: "basic with empty username",
			auth: restapi.BasicAuth{Password: "pat"},
			want: "Basic " + base64.StdEncoding.EncodeToString([]byte(":pat")),
		},
		{
			name: "basic with email",
			auth: restapi.BasicAuth{Username: "me@example.com", Password: "token"},
			want: "Basic " + base64.StdEncoding.EncodeToString([]byte("me@example.com:token")),
		},
		{
			name: "bearer",
			auth: restapi.BearerToken{Token: "abc"},
			want: "Bearer abc",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			c := newClient(t, srv, tc.auth, -1)
			_, err := c.GetJSON(context.Background(), "/users/me", nil, nil)
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(tc.want)
		})
	}
}

func TestDo_Retry(t *testing.T) {
	t.Run("retries server errors then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"name":"ok"}`))
		}))
		defer srv.Close()

		c := newClient(t, srv, restapi.BearerToken{Token: "t"}, 3)
		var out struct {
			Name string `json:"name"`
		}
		_, err := c.GetJSON(context.Background(), "/things", nil, &out)
		gt.NoError(t, err).Required()
		gt.Value(t, out.Name).Equal("ok")
		gt.Value(t, calls.Load()).Equal(int32(3))
	})

	t.Run("honors Retry-After on 429", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := newClient(t, srv, restapi.BearerToken{Token: "t"}, 2)
		start := time.Now()
		_, err := c.GetJSON(context.Background(), "/things", nil, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, calls.Load()).Equal(int32(2))
		gt.Bool(t, time.Since(start) >= time.Second).True()
	})

	t.Run("gives up after max retries with status", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"backend down"}`))
		}))
		defer srv.Close()

		c := newClient(t, srv, restapi.BearerToken{Token: "t"}, 2)
		_, err := c.GetJSON(context.Background(), "/things", nil, nil)
		gt.Error(t, err)
		gt.Value(t, calls.Load()).Equal(int32(3))
		gt.Value(t, restapi.StatusCode(err)).Equal(http.StatusInternalServerError)
		gt.String(t, err.Error()).Contains("backend down")
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"TF400813: not authorized"}`))
		}))
		defer srv.Close()

		c := newClient(t, srv, restapi.BearerToken{Token: "t"}, 3)
		_, err := c.GetJSON(context.Background(), "/things", nil, nil)
		gt.Error(t, err)
		gt.Value(t, calls.Load()).Equal(int32(1))

		var httpErr *restapi.HTTPError
		gt.Bool(t, errors.As(err, &httpErr)).True()
		gt.Value(t, httpErr.StatusCode).Equal(http.StatusUnauthorized)
		gt.Value(t, httpErr.Message).Equal("TF400813: not authorized")
	})
}

func TestDo_URLResolution(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(t, srv, restapi.BearerToken{Token: "t"}, -1)

	t.Run("relative path joins base and merges query", func(t *testing.T) {
		_, err := c.GetJSON(context.Background(), "/tasks?opt_fields=name", url.Values{"project": {"123"}}, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, gotPath).Equal("/api/1.0/tasks")
		values, err := url.ParseQuery(gotQuery)
		gt.NoError(t, err).Required()
		gt.Value(t, values.Get("opt_fields")).Equal("name")
		gt.Value(t, values.Get("project")).Equal("123")
	})

	t.Run("absolute URL is used as is", func(t *testing.T) {
		_, err := c.GetJSON(context.Background(), srv.URL+"/elsewhere?cursor=abc", nil, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, gotPath).Equal("/elsewhere")
		gt.Value(t, gotQuery).Equal("cursor=abc")
	})
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["query"]})
	}))
	defer srv.Close()

	c := newClient(t, srv, restapi.BearerToken{Token: "t"}, -1)
	var out map[string]string
	_, err := c.PostJSON(context.Background(), "/wiql", nil, map[string]string{"query": "SELECT 1"}, &out)
	gt.NoError(t, err).Required()
	gt.Value(t, out["echo"]).Equal("SELECT 1")
}

func TestConfigApply(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	cfg := restapi.Config{BaseURL: "https://example.com"}.Apply(
		restapi.WithHTTPClient(hc),
		restapi.WithRetry(5, time.Second),
		restapi.WithRateLimit(2, 1),
		restapi.WithUserAgent("test-agent"),
	)

	gt.Value(t, cfg.HTTPClient).Equal(hc)
	gt.Value(t, cfg.MaxRetries).Equal(5)
	gt.Value(t, cfg.BaseBackoff).Equal(time.Second)
	gt.Value(t, cfg.RateLimit).Equal(2.0)
	gt.Value(t, cfg.RateBurst).Equal(1)
	gt.Value(t, cfg.UserAgent).Equal("test-agent")
}
