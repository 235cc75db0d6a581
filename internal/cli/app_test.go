package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"careerdesk/internal/cache"
	"careerdesk/internal/domain"
	"careerdesk/internal/integrations/backend"
	"careerdesk/internal/usecase"
)

type scriptedGateway struct {
	started backend.Session
	reply   string
}

func (g *scriptedGateway) ListSessions(context.Context) ([]backend.Session, error) {
	return nil, errors.New("offline")
}

func (g *scriptedGateway) GetSession(context.Context, string) ([]domain.Message, error) {
	return nil, errors.New("offline")
}

func (g *scriptedGateway) StartSession(context.Context, string) (backend.Session, error) {
	return g.started, nil
}

func (g *scriptedGateway) SendMessage(context.Context, string, string) (string, error) {
	return g.reply, nil
}

func (g *scriptedGateway) DeleteSession(context.Context, string) error {
	return nil
}

func (g *scriptedGateway) UploadResume(context.Context, string, io.Reader, int64) (domain.ResumeArtifact, error) {
	return domain.ResumeArtifact{}, errors.New("offline")
}

func (g *scriptedGateway) SelfAnalysis(context.Context, backend.SelfAnalysisRequest) (domain.AnalysisReport, error) {
	return domain.AnalysisReport{}, errors.New("offline")
}

type nullSnapshot struct{}

func (nullSnapshot) LoadConversations() ([]domain.Conversation, error) { return nil, nil }
func (nullSnapshot) LoadMessages() (domain.MessageMap, error)          { return domain.MessageMap{}, nil }
func (nullSnapshot) SaveConversations([]domain.Conversation) error     { return nil }
func (nullSnapshot) SaveMessages(domain.MessageMap) error              { return nil }

type nullArtifacts struct{}

func (nullArtifacts) Resume() (domain.ResumeArtifact, error)  { return domain.ResumeArtifact{}, cache.ErrNotFound }
func (nullArtifacts) SaveResume(domain.ResumeArtifact) error  { return nil }
func (nullArtifacts) Analysis() (domain.AnalysisReport, error) {
	return domain.AnalysisReport{}, cache.ErrNotFound
}
func (nullArtifacts) SaveAnalysis(domain.AnalysisReport) error { return nil }

type nullProfiles struct{}

func (nullProfiles) Profile() (domain.Profile, error) { return domain.Profile{}, cache.ErrNotFound }
func (nullProfiles) SaveProfile(domain.Profile) error { return nil }

func newTestApp(t *testing.T, gw *scriptedGateway, input string) (*App, *bytes.Buffer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := usecase.NewChatStore(gw, nullSnapshot{}, logger, usecase.Config{
		ReplyDelay: func() time.Duration { return time.Millisecond },
	})
	require.NoError(t, err)
	uploads, err := usecase.NewUploadService(gw, nullArtifacts{}, logger, 1<<20)
	require.NoError(t, err)
	profile, err := usecase.NewProfileService(nullProfiles{}, logger)
	require.NoError(t, err)

	var out bytes.Buffer
	app, err := New(store, uploads, profile, strings.NewReader(input), &out, logger)
	require.NoError(t, err)
	return app, &out
}

func TestRun_StartSendAndQuit(t *testing.T) {
	gw := &scriptedGateway{
		started: backend.Session{ID: "s1"},
		reply:   "What was the hardest bug you fixed?",
	}
	app, out := newTestApp(t, gw, "/new Backend Engineer\nI build storage systems.\n/quit\n")

	require.NoError(t, app.Run(context.Background()))

	text := out.String()
	require.Contains(t, text, "Backend Engineer")
	require.Contains(t, text, "you: I build storage systems.")
	require.Contains(t, text, "interviewer: What was the hardest bug you fixed?")
}

func TestRun_SendWithoutOpenConversation(t *testing.T) {
	app, out := newTestApp(t, &scriptedGateway{}, "hello\n/quit\n")
	require.NoError(t, app.Run(context.Background()))
	require.Contains(t, out.String(), "No conversation open")
}

func TestRun_LocalPracticeChat(t *testing.T) {
	app, out := newTestApp(t, &scriptedGateway{}, "/local SRE\nmy answer\n/list\n/quit\n")
	require.NoError(t, app.Run(context.Background()))

	text := out.String()
	require.Contains(t, text, "you: my answer")
	require.Contains(t, text, "(local)")
}

func TestRun_UnknownCommand(t *testing.T) {
	app, out := newTestApp(t, &scriptedGateway{}, "/frobnicate\n/quit\n")
	require.NoError(t, app.Run(context.Background()))
	require.Contains(t, out.String(), "Unknown command")
}
