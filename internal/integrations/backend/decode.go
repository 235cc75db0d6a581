package backend

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"careerdesk/internal/domain"
)

// The backend's payloads are loosely shaped and have drifted across handler
// versions. All field probing lives here, in one decoding step per response
// family, with an explicit precedence order.

// replyPlaceholder is surfaced when no known reply field is present.
const replyPlaceholder = "The interviewer did not return a readable reply."

// decodeReply extracts the bot reply from a send-message response.
// Precedence: ai.reply > ai.next_question > reply > text > last entry of
// messages. The current backend returns {ok, ai:{reply, evaluation,
// next_question}}; the rest cover older handlers.
func decodeReply(raw []byte) string {
	body := gjson.ParseBytes(raw)
	for _, path := range []string{"ai.reply", "ai.next_question", "reply", "text"} {
		if v := body.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	if msgs := body.Get("messages"); msgs.IsArray() {
		arr := msgs.Array()
		if len(arr) > 0 {
			if text := messageText(arr[len(arr)-1]); text != "" {
				return text
			}
		}
	}
	return replyPlaceholder
}

// decodeSessions extracts the session summaries from a listing response.
func decodeSessions(raw []byte) []Session {
	out := []Session{}
	sessions := gjson.GetBytes(raw, "sessions")
	if !sessions.IsArray() {
		return out
	}
	for _, item := range sessions.Array() {
		s := decodeSessionObject(item)
		if s.ID == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// decodeStartedSession extracts the created session from a start response.
// The session may arrive under "session", "chat", or as the body itself.
func decodeStartedSession(raw []byte) Session {
	body := gjson.ParseBytes(raw)
	for _, path := range []string{"session", "chat"} {
		if v := body.Get(path); v.IsObject() {
			return decodeSessionObject(v)
		}
	}
	return decodeSessionObject(body)
}

// decodeSessionMessages extracts the transcript from a get-session response.
func decodeSessionMessages(raw []byte) []domain.Message {
	body := gjson.ParseBytes(raw)
	for _, path := range []string{"chat.messages", "session.messages", "messages"} {
		if v := body.Get(path); v.IsArray() {
			return decodeMessages(v)
		}
	}
	return []domain.Message{}
}

func decodeSessionObject(v gjson.Result) Session {
	s := Session{
		ID:         firstString(v, "_id", "id", "session_id"),
		TargetRole: firstString(v, "target_role", "role", "title"),
		Preview:    firstString(v, "last", "preview", "last_message"),
		UpdatedAt:  parseTimestamp(v.Get("updated_at")),
	}
	if msgs := v.Get("messages"); msgs.IsArray() {
		s.Messages = decodeMessages(msgs)
	}
	return s
}

func decodeMessages(v gjson.Result) []domain.Message {
	out := []domain.Message{}
	for _, item := range v.Array() {
		text := messageText(item)
		if text == "" {
			continue
		}
		out = append(out, domain.Message{
			ID:        messageID(item),
			From:      messageFrom(item),
			Text:      text,
			Timestamp: parseTimestamp(item.Get("timestamp"), item.Get("created_at")),
		})
	}
	return out
}

// decodeResumeArtifact extracts the stored-file reference from an upload
// response, falling back to the local file name when the backend returns
// none.
func decodeResumeArtifact(raw []byte, filename string, size int64) domain.ResumeArtifact {
	body := gjson.ParseBytes(raw)
	a := domain.ResumeArtifact{
		URL:        firstString(body, "url", "file_url", "file_path"),
		Filename:   firstString(body, "filename", "file_name"),
		Size:       size,
		UploadedAt: time.Now().UTC(),
	}
	if a.Filename == "" {
		a.Filename = filename
	}
	return a
}

// decodeAnalysisReport extracts the self-analysis report. The whole payload
// is kept in Raw so unmodeled fields survive the round trip.
func decodeAnalysisReport(raw []byte, role string) domain.AnalysisReport {
	body := gjson.ParseBytes(raw)
	r := domain.AnalysisReport{
		Role:       role,
		MatchScore: body.Get("analysis.match_score").Float(),
		ATSScore:   body.Get("analysis.ats_score").Float(),
		Feedback:   firstString(body, "feedback.summary", "feedback"),
		Raw:        string(raw),
		CreatedAt:  time.Now().UTC(),
	}
	if r.MatchScore == 0 {
		r.MatchScore = body.Get("match_score").Float()
	}
	if r.ATSScore == 0 {
		r.ATSScore = body.Get("ats_score").Float()
	}
	if detected := body.Get("auto_detected_role"); r.Role == "" && detected.Exists() {
		r.Role = detected.String()
	}
	for _, path := range []string{"analysis.skill_gap", "skill_gap", "skill_gaps"} {
		if gaps := body.Get(path); gaps.IsArray() {
			for _, g := range gaps.Array() {
				r.SkillGaps = append(r.SkillGaps, g.String())
			}
			break
		}
	}
	return r
}

func messageID(v gjson.Result) string {
	if id := firstString(v, "_id", "id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// messageFrom maps the backend's sender labels onto the client's two roles.
// The backend stores "candidate" for the user and "ai" for the interviewer.
func messageFrom(v gjson.Result) string {
	switch firstString(v, "sender", "from", "role") {
	case "candidate", "user":
		return domain.FromUser
	default:
		return domain.FromBot
	}
}

func messageText(v gjson.Result) string {
	return firstString(v, "text", "content", "message")
}

func firstString(v gjson.Result, paths ...string) string {
	for _, path := range paths {
		if r := v.Get(path); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

func parseTimestamp(candidates ...gjson.Result) time.Time {
	for _, v := range candidates {
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.Number {
			n := v.Int()
			// Millisecond epochs come from the browser client.
			if n > 1e12 {
				return time.UnixMilli(n).UTC()
			}
			if n > 0 {
				return time.Unix(n, 0).UTC()
			}
			continue
		}
		if t, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
