package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"careerdesk/internal/domain"
)

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) AccessToken() (string, error) {
	return f.token, f.err
}

func newTestClient(t *testing.T, handler http.Handler, token string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(&fakeTokens{token: token}, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, srv
}

func TestNewClient_NilTokenSource(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestListSessions_AttachesBearer(t *testing.T) {
	var gotAuth, gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{"ok":true,"sessions":[{"_id":"s1","target_role":"SRE"}]}`)
	}), "tok-1")

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.Equal(t, "/interview/list", gotPath)
	require.Len(t, sessions, 1)
	require.Equal(t, "s1", sessions[0].ID)
	require.Equal(t, "SRE", sessions[0].TargetRole)
}

func TestListSessions_NoCredentialDegradesToEmpty(t *testing.T) {
	called := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), "")

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Empty(t, sessions)
	require.False(t, called, "listing without a credential must not hit the backend")
}

func TestGetSession_NoCredentialIsTerminal(t *testing.T) {
	c, _ := newTestClient(t, http.NewServeMux(), "")
	_, err := c.GetSession(context.Background(), "s1")
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestStartSession_PostsFormEncodedRole(t *testing.T) {
	var gotContentType, gotRole string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/interview/start", r.URL.Path)
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotRole = r.PostFormValue("target_role")
		_, _ = io.WriteString(w, `{"ok":true,"session":{"_id":"s9","target_role":"Backend Engineer","messages":[]}}`)
	}), "tok")

	sess, err := c.StartSession(context.Background(), "Backend Engineer")
	require.NoError(t, err)
	require.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	require.Equal(t, "Backend Engineer", gotRole)
	require.Equal(t, "s9", sess.ID)
	require.Empty(t, sess.Messages)
}

func TestStartSession_EmptyRole(t *testing.T) {
	c, _ := newTestClient(t, http.NewServeMux(), "tok")
	_, err := c.StartSession(context.Background(), "  ")
	require.Error(t, err)
}

func TestSendMessage_ReturnsDecodedReply(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/interview/s1/message", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "I build storage systems.", r.PostFormValue("text"))
		_, _ = io.WriteString(w, `{"ok":true,"ai":{"reply":"Good. What was the hardest bug?","evaluation":"solid"}}`)
	}), "tok")

	reply, err := c.SendMessage(context.Background(), "s1", "I build storage systems.")
	require.NoError(t, err)
	require.Equal(t, "Good. What was the hardest bug?", reply)
}

func TestDeleteSession_UsesDeleteMethod(t *testing.T) {
	var gotMethod, gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}), "tok")

	require.NoError(t, c.DeleteSession(context.Background(), "s1"))
	require.Equal(t, http.MethodDelete, gotMethod)
	require.Equal(t, "/interview/s1", gotPath)
}

func TestDeleteSession_Non2xxIsHTTPStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not yours", http.StatusForbidden)
	}), "tok")

	err := c.DeleteSession(context.Background(), "s1")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "not yours")
}

func TestUploadResume_MultipartFile(t *testing.T) {
	var gotFilename, gotContents string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/profile/upload_resume", r.URL.Path)
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		gotFilename = header.Filename
		buf, err := io.ReadAll(f)
		require.NoError(t, err)
		gotContents = string(buf)
		_, _ = io.WriteString(w, `{"ok":true,"url":"/files/resume.pdf"}`)
	}), "tok")

	artifact, err := c.UploadResume(context.Background(), "resume.pdf", strings.NewReader("pdf-bytes"), 9)
	require.NoError(t, err)
	require.Equal(t, "resume.pdf", gotFilename)
	require.Equal(t, "pdf-bytes", gotContents)
	require.Equal(t, "/files/resume.pdf", artifact.URL)
	require.Equal(t, "resume.pdf", artifact.Filename)
	require.EqualValues(t, 9, artifact.Size)
}

func TestSelfAnalysis_SendsAllParts(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/ai/self_analysis", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Backend Engineer", r.PostFormValue("target_role"))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		_, _, err = r.FormFile("jd_file")
		require.NoError(t, err)
		_, _ = io.WriteString(w, `{"ok":true,"analysis":{"match_score":81,"ats_score":74,"skill_gap":["grpc"]}}`)
	}), "tok")

	report, err := c.SelfAnalysis(context.Background(), SelfAnalysisRequest{
		ResumeFilename: "resume.pdf",
		Resume:         strings.NewReader("resume"),
		JDFilename:     "jd.txt",
		JD:             strings.NewReader("jd"),
		TargetRole:     "Backend Engineer",
	})
	require.NoError(t, err)
	require.Equal(t, 81.0, report.MatchScore)
	require.Equal(t, 74.0, report.ATSScore)
	require.Equal(t, []string{"grpc"}, report.SkillGaps)
}

func TestBearer_TokenSourceErrorMapsToNoCredential(t *testing.T) {
	c, err := NewClient(&fakeTokens{err: errors.New("disk gone")})
	require.NoError(t, err)
	_, err = c.GetSession(context.Background(), "s1")
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestGetSession_DecodesNestedMessages(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true,"chat":{"_id":"s1","messages":[
			{"sender":"ai","text":"Tell me about yourself."},
			{"sender":"candidate","text":"I build storage systems."}
		]}}`)
	}), "tok")

	msgs, err := c.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.FromBot, msgs[0].From)
	require.Equal(t, domain.FromUser, msgs[1].From)
}
