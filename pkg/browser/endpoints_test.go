package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		name                         string
		override, env, project, user string
		want                         []Endpoint
	}{
		{
			name: "default only",
			want: []Endpoint{{SourceDefault, DefaultEndpoint}},
		},
		{
			name:     "full chain in precedence order",
			override: "http://o:1", env: "http://e:2", project: "http://p:3", user: "http://u:4",
			want: []Endpoint{
				{SourceOverride, "http://o:1"},
				{SourceEnv, "http://e:2"},
				{SourceProject, "http://p:3"},
				{SourceUser, "http://u:4"},
				{SourceDefault, DefaultEndpoint},
			},
		},
		{
			name: "duplicates keep first source",
			env:  "http://localhost:9222/", project: " http://e:2 ", user: "http://e:2",
			want: []Endpoint{
				{SourceEnv, "http://localhost:9222/"},
				{SourceProject, "http://e:2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Candidates(tt.override, tt.env, tt.project, tt.user))
		})
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"Browser":"Chrome/126.0","Protocol-Version":"1.3","webSocketDebuggerUrl":"ws://x/devtools/browser/1"}`)
	}))
	defer srv.Close()

	info, err := Probe(context.Background(), srv.URL+"/", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Chrome/126.0", info.Browser)
	assert.Equal(t, "1.3", info.ProtocolVersion)
	assert.Equal(t, "ws://x/devtools/browser/1", info.WebSocketDebuggerURL)
}

func TestProbe_Failures(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer bad.Close()
	_, err := Probe(context.Background(), bad.URL, time.Second)
	assert.ErrorContains(t, err, "invalid version info")

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	_, err = Probe(context.Background(), missing.URL, time.Second)
	assert.ErrorContains(t, err, "404")

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	_, err = Probe(context.Background(), url, time.Second)
	assert.ErrorContains(t, err, "not reachable")
}
