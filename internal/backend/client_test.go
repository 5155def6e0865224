package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, nil)
}

func TestLogin_TokenFields(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
		err  error
	}{
		{name: "token", body: `{"token":"t1"}`, want: "t1"},
		{name: "access_token", body: `{"access_token":"t2"}`, want: "t2"},
		{name: "data.token", body: `{"data":{"token":"t3"}}`, want: "t3"},
		{name: "missing", body: `{"ok":true}`, err: ErrNoToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, pathLogin, r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"username":"admin","password":"pw"}`, string(body))
				_, _ = io.WriteString(w, tc.body)
			}))

			token, err := c.Login(context.Background(), "admin", "pw")
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, token)
		})
	}
}

func TestLogin_TokenNeverLogged(t *testing.T) {
	const secret = "SECRET-ADMIN-TOKEN"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token":"`+secret+`","access_token":"`+secret+`"}`)
	}))
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	c := NewClient(srv.URL, 2*time.Second, zap.New(core))

	token, err := c.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, secret, token)

	require.NotZero(t, logs.Len())
	for _, e := range logs.All() {
		assert.NotContains(t, e.Message, secret)
		for k, v := range e.ContextMap() {
			assert.NotContains(t, fmt.Sprint(v), secret, "token logged in %q field %q", e.Message, k)
		}
	}
}

func TestLogin_ErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid credentials"}`)
	}))

	_, err := c.Login(context.Background(), "admin", "bad")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "invalid credentials", se.Msg)
}

func TestCandidates_SendsBearer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"_id":"1","name":"A","votes":3},{"_id":"2","name":"B","votes":7}]`)
	})).WithToken("secret")

	got, err := c.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
}

func TestUnauthorizedClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "401", status: http.StatusUnauthorized, body: `{}`},
		{name: "403", status: http.StatusForbidden, body: ``},
		{name: "message only", status: http.StatusInternalServerError, body: `{"error":"unauthorized"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))

			_, err := c.VoteUpdates(context.Background())
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVoteUpdates_TransportFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond, nil)
	_, err := c.VoteUpdates(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestCreateCandidate_FallsBackToAlternate(t *testing.T) {
	var hits []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "Ada", r.FormValue("name"))
		assert.Equal(t, "President", r.FormValue("position"))

		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "ada.png", hdr.Filename)
		assert.Equal(t, "PNGDATA", string(data))

		if r.URL.Path == pathCandidates {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"_id":"new"}`)
	}))

	err := c.CreateCandidate(context.Background(), NewCandidate{
		Name:      "Ada",
		Position:  "President",
		Image:     strings.NewReader("PNGDATA"),
		ImageName: "ada.png",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{pathCandidates, pathCandidatesAlt}, hits)
}

func TestCreateCandidate_NoFallbackOnUnauthorized(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := c.CreateCandidate(context.Background(), NewCandidate{Name: "Ada", Position: "President"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, calls)
}

func TestCreateCandidate_Validation(t *testing.T) {
	c := NewClient("http://unused", time.Second, nil)
	err := c.CreateCandidate(context.Background(), NewCandidate{Name: " ", Position: "President"})
	assert.ErrorIs(t, err, ErrInvalidCandidate)
}

func TestVerifyVotes_DefaultMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathVerify, r.URL.Path)
		_, _ = io.WriteString(w, `{}`)
	}))

	msg, err := c.VerifyVotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultVerifyMessage, msg)
}

func TestResetVotes(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = r.Method == http.MethodPost && r.URL.Path == pathReset
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.ResetVotes(context.Background()))
	assert.True(t, called)
}
