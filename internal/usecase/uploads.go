package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"careerdesk/internal/domain"
	"careerdesk/internal/integrations/backend"
)

const defaultMaxUploadBytes = 5 << 20

// ErrFileTooLarge marks a staged file that exceeds the configured maximum.
// Flagged files are excluded from the upload payload.
var ErrFileTooLarge = errors.New("usecase: file exceeds the maximum upload size")

// Uploader is the backend surface the upload service depends on.
type Uploader interface {
	UploadResume(ctx context.Context, filename string, file io.Reader, size int64) (domain.ResumeArtifact, error)
	SelfAnalysis(ctx context.Context, req backend.SelfAnalysisRequest) (domain.AnalysisReport, error)
}

// ArtifactCache persists upload results so the account view can read them.
type ArtifactCache interface {
	Resume() (domain.ResumeArtifact, error)
	SaveResume(a domain.ResumeArtifact) error
	Analysis() (domain.AnalysisReport, error)
	SaveAnalysis(r domain.AnalysisReport) error
}

// StagedFile is a local file prepared for upload. Err is set when the file
// failed validation; such files never reach the payload.
type StagedFile struct {
	Path string
	Name string
	Size int64
	Err  error
}

// UploadService stages files, validates their size, and submits them to the
// dedicated upload endpoints. Results land in the shared artifact cache.
type UploadService struct {
	gw       Uploader
	cache    ArtifactCache
	logger   *slog.Logger
	maxBytes int64
}

func NewUploadService(gw Uploader, cache ArtifactCache, logger *slog.Logger, maxBytes int64) (*UploadService, error) {
	if gw == nil {
		return nil, errors.New("usecase: uploader must not be nil")
	}
	if cache == nil {
		return nil, errors.New("usecase: artifact cache must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &UploadService{gw: gw, cache: cache, logger: logger, maxBytes: maxBytes}, nil
}

// Stage validates each path and returns one StagedFile per input, flagged
// individually: one bad file does not poison the batch.
func (u *UploadService) Stage(paths ...string) []StagedFile {
	out := make([]StagedFile, 0, len(paths))
	for _, path := range paths {
		staged := StagedFile{Path: path, Name: filepath.Base(path)}
		info, err := os.Stat(path)
		switch {
		case err != nil:
			staged.Err = err
		case info.IsDir():
			staged.Err = errors.New("usecase: directories cannot be uploaded")
		default:
			staged.Size = info.Size()
			if staged.Size > u.maxBytes {
				staged.Err = ErrFileTooLarge
			}
		}
		out = append(out, staged)
	}
	return out
}

// SubmitResume uploads a staged resume and stores the returned artifact
// reference in the shared cache.
func (u *UploadService) SubmitResume(ctx context.Context, staged StagedFile) (domain.ResumeArtifact, error) {
	if staged.Err != nil {
		return domain.ResumeArtifact{}, newError(ErrorInvalidInput, "invalid_file", staged.Err)
	}
	f, err := os.Open(staged.Path)
	if err != nil {
		return domain.ResumeArtifact{}, newError(ErrorInternal, "open_file", err)
	}
	defer f.Close()

	artifact, err := u.gw.UploadResume(ctx, staged.Name, f, staged.Size)
	if err != nil {
		return domain.ResumeArtifact{}, classifyGateway("upload_resume", err)
	}
	if err := u.cache.SaveResume(artifact); err != nil {
		u.logger.Warn("caching resume reference failed", "err", err)
	}
	return artifact, nil
}

// Analyze submits a staged resume (and optional job description) for
// self-analysis against the target role, caching the resulting report.
func (u *UploadService) Analyze(ctx context.Context, resume StagedFile, jd *StagedFile, targetRole string) (domain.AnalysisReport, error) {
	if resume.Err != nil {
		return domain.AnalysisReport{}, newError(ErrorInvalidInput, "invalid_file", resume.Err)
	}
	if jd != nil && jd.Err != nil {
		return domain.AnalysisReport{}, newError(ErrorInvalidInput, "invalid_jd_file", jd.Err)
	}

	resumeFile, err := os.Open(resume.Path)
	if err != nil {
		return domain.AnalysisReport{}, newError(ErrorInternal, "open_file", err)
	}
	defer resumeFile.Close()

	req := backend.SelfAnalysisRequest{
		ResumeFilename: resume.Name,
		Resume:         resumeFile,
		TargetRole:     strings.TrimSpace(targetRole),
	}
	if jd != nil {
		jdFile, err := os.Open(jd.Path)
		if err != nil {
			return domain.AnalysisReport{}, newError(ErrorInternal, "open_jd_file", err)
		}
		defer jdFile.Close()
		req.JDFilename = jd.Name
		req.JD = jdFile
	}

	report, err := u.gw.SelfAnalysis(ctx, req)
	if err != nil {
		return domain.AnalysisReport{}, classifyGateway("self_analysis", err)
	}
	if err := u.cache.SaveAnalysis(report); err != nil {
		u.logger.Warn("caching analysis report failed", "err", err)
	}
	return report, nil
}

// LastResume returns the cached resume reference, if any.
func (u *UploadService) LastResume() (domain.ResumeArtifact, bool) {
	a, err := u.cache.Resume()
	if err != nil {
		return domain.ResumeArtifact{}, false
	}
	return a, true
}

// LastAnalysis returns the cached self-analysis report, if any.
func (u *UploadService) LastAnalysis() (domain.AnalysisReport, bool) {
	r, err := u.cache.Analysis()
	if err != nil {
		return domain.AnalysisReport{}, false
	}
	return r, true
}

// classifyGateway mirrors ChatStore.classify for services without store state.
func classifyGateway(reason string, err error) *Error {
	if errors.Is(err, backend.ErrNoCredential) {
		return newError(ErrorMissingCredential, reason, err)
	}
	return newError(ErrorUpstream, reason, err)
}
