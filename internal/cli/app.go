package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"careerdesk/internal/domain"
	"careerdesk/internal/usecase"
)

// App is the terminal chat view: a sidebar of conversations, the active
// transcript, and a composer loop. Anything that is not a command is sent
// as a message to the active conversation.
type App struct {
	store   *usecase.ChatStore
	uploads *usecase.UploadService
	profile *usecase.ProfileService
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger

	active string
}

func New(store *usecase.ChatStore, uploads *usecase.UploadService, profile *usecase.ProfileService, in io.Reader, out io.Writer, logger *slog.Logger) (*App, error) {
	if store == nil {
		return nil, errors.New("cli: chat store must not be nil")
	}
	if uploads == nil {
		return nil, errors.New("cli: upload service must not be nil")
	}
	if profile == nil {
		return nil, errors.New("cli: profile service must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:   store,
		uploads: uploads,
		profile: profile,
		in:      in,
		out:     out,
		logger:  logger,
	}, nil
}

// Run loads state and enters the composer loop until ctx is cancelled, the
// input ends, or the user quits.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Load(ctx); err != nil {
		a.logger.Warn("initial load failed", "err", err)
	}
	a.renderSidebar()
	a.printf("Type a message, or /help for commands.\n")

	scanner := bufio.NewScanner(a.in)
	for {
		a.printf("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		a.dispatch(ctx, line)
	}
	return scanner.Err()
}

func (a *App) dispatch(ctx context.Context, line string) {
	if !strings.HasPrefix(line, "/") {
		a.send(ctx, line)
		return
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/help":
		a.printHelp()
	case "/list":
		a.renderSidebar()
	case "/open":
		a.open(rest)
	case "/new":
		a.start(ctx, rest)
	case "/local":
		a.addLocal(rest)
	case "/delete":
		a.remove(ctx, rest)
	case "/resume":
		a.uploadResume(ctx, rest)
	case "/analyze":
		a.analyze(ctx, rest)
	case "/profile":
		a.showProfile()
	default:
		a.printf("Unknown command %s. Try /help.\n", cmd)
	}
}

func (a *App) send(ctx context.Context, text string) {
	if a.active == "" {
		a.printf("No conversation open. /new <role> starts one, /open N picks one.\n")
		return
	}
	if err := a.store.Send(ctx, a.active, text); err != nil {
		a.alert(err)
		return
	}
	a.renderTranscript()
}

func (a *App) open(arg string) {
	conv, ok := a.pick(arg)
	if !ok {
		return
	}
	a.active = conv.ID
	a.renderTranscript()
}

func (a *App) start(ctx context.Context, role string) {
	if role == "" {
		a.printf("Usage: /new <target role>\n")
		return
	}
	conv, err := a.store.Start(ctx, role)
	if err != nil {
		a.alert(err)
		return
	}
	a.active = conv.ID
	a.renderTranscript()
}

func (a *App) addLocal(role string) {
	if role == "" {
		a.printf("Usage: /local <target role>\n")
		return
	}
	conv, err := a.store.AddLocal(role)
	if err != nil {
		a.alert(err)
		return
	}
	a.active = conv.ID
	a.renderTranscript()
}

func (a *App) remove(ctx context.Context, arg string) {
	conv, ok := a.pick(arg)
	if !ok {
		return
	}
	if err := a.store.Delete(ctx, conv.ID); err != nil {
		a.alert(err)
		return
	}
	if a.active == conv.ID {
		a.active = ""
	}
	a.renderSidebar()
}

func (a *App) uploadResume(ctx context.Context, path string) {
	if path == "" {
		a.printf("Usage: /resume <path>\n")
		return
	}
	staged := a.uploads.Stage(path)[0]
	artifact, err := a.uploads.SubmitResume(ctx, staged)
	if err != nil {
		a.alert(err)
		return
	}
	a.printf("Resume uploaded: %s (%d bytes)\n", artifact.Filename, artifact.Size)
}

func (a *App) analyze(ctx context.Context, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		a.printf("Usage: /analyze <resume path> [jd path] [target role...]\n")
		return
	}
	resume := a.uploads.Stage(fields[0])[0]
	var jd *usecase.StagedFile
	role := ""
	if len(fields) > 1 {
		staged := a.uploads.Stage(fields[1])[0]
		if staged.Err == nil {
			jd = &staged
			role = strings.Join(fields[2:], " ")
		} else {
			role = strings.Join(fields[1:], " ")
		}
	}
	report, err := a.uploads.Analyze(ctx, resume, jd, role)
	if err != nil {
		a.alert(err)
		return
	}
	a.printf("Self-analysis for %s: match %.0f%%, ATS %.0f%%\n", report.Role, report.MatchScore, report.ATSScore)
	if len(report.SkillGaps) > 0 {
		a.printf("Skill gaps: %s\n", strings.Join(report.SkillGaps, ", "))
	}
}

func (a *App) showProfile() {
	p := a.profile.Get()
	if p.Name == "" {
		a.printf("No cached profile.\n")
		return
	}
	a.printf("%s - %s (%s)\n", p.Name, p.Headline, p.Email)
	if ra, ok := a.uploads.LastResume(); ok {
		a.printf("Resume on file: %s\n", ra.Filename)
	}
	if report, ok := a.uploads.LastAnalysis(); ok {
		a.printf("Last self-analysis (%s): match %.0f%%, ATS %.0f%%\n", report.Role, report.MatchScore, report.ATSScore)
	}
}

// pick resolves a 1-based sidebar index to a conversation.
func (a *App) pick(arg string) (domain.Conversation, bool) {
	convs := a.store.Conversations()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(convs) {
		a.printf("Pick a conversation number from /list.\n")
		return domain.Conversation{}, false
	}
	return convs[n-1], true
}

func (a *App) renderSidebar() {
	convs := a.store.Conversations()
	if len(convs) == 0 {
		a.printf("No conversations yet. /new <role> starts an interview.\n")
		return
	}
	for i, c := range convs {
		marker := " "
		if c.ID == a.active {
			marker = "*"
		}
		suffix := ""
		if !c.Synced() {
			suffix = " (local)"
		}
		if a.store.Deleting(c.ID) {
			suffix += " (deleting…)"
		}
		a.printf("%s %2d. %s%s - %s\n", marker, i+1, c.Role, suffix, truncate(c.Last, 60))
	}
}

func (a *App) renderTranscript() {
	for _, m := range a.store.Messages(a.active) {
		who := "interviewer"
		if m.From == domain.FromUser {
			who = "you"
		}
		a.printf("%s: %s\n", who, m.Text)
	}
}

func (a *App) alert(err error) {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorMissingCredential {
		a.printf("! You are signed out. Save a credential before doing that.\n")
		return
	}
	a.printf("! %v\n", err)
}

func (a *App) printHelp() {
	a.printf(`Commands:
  /list            show conversations
  /open N          open conversation N
  /new <role>      start a synced interview session
  /local <role>    start a local-only practice chat
  /delete N        delete conversation N
  /resume <path>   upload a resume
  /analyze <resume> [jd] [role]  run self-analysis
  /profile         show the cached profile
  /quit            exit
`)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
