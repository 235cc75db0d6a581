package domain

import "time"

// Profile is the locally cached account profile shown in the account view.
type Profile struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Headline  string    `json:"headline,omitempty"`
	Location  string    `json:"location,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResumeArtifact is the reference to an uploaded resume, sourced either
// from the cache or from a just-completed upload.
type ResumeArtifact struct {
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// AnalysisReport is the self-analysis result for a resume against a target
// role. Raw keeps the backend payload verbatim so the report survives
// fields this client does not model.
type AnalysisReport struct {
	Role       string    `json:"role"`
	MatchScore float64   `json:"matchScore"`
	ATSScore   float64   `json:"atsScore"`
	SkillGaps  []string  `json:"skillGaps,omitempty"`
	Feedback   string    `json:"feedback,omitempty"`
	Raw        string    `json:"raw,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
