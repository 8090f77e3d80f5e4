package http

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"voice-survey-service/internal/models"
	"voice-survey-service/internal/observability/logging"
)

//go:embed templates/admin.html
var templateFS embed.FS

var adminTemplate = template.Must(template.New("admin.html").Funcs(template.FuncMap{
	"playURL": playURL,
	"inc":     func(i int) int { return i + 1 },
}).ParseFS(templateFS, "templates/admin.html"))

type adminRow struct {
	Participant *models.Participant
	Answers     []*models.Answer // one slot per question; nil when unanswered
}

type adminPage struct {
	Questions    []string
	Participants []adminRow
}

// admin renders a read-only overview of every participant's answers.
func (h *handlers) admin(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithComponent("admin")

	participants, err := h.app.Store.List(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list participants")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	questions := h.app.Questions.All()
	page := adminPage{Questions: questions}
	for _, p := range participants {
		row := adminRow{Participant: p, Answers: make([]*models.Answer, len(questions))}
		for i := range p.Responses {
			if i < len(row.Answers) {
				row.Answers[i] = &p.Responses[i]
			}
		}
		page.Participants = append(page.Participants, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := adminTemplate.Execute(w, page); err != nil {
		logger.Error().Err(err).Msg("Failed to render admin page")
	}
}

func playURL(callID string, a *models.Answer) string {
	return "/play/" + url.PathEscape(callID) + "/" + url.PathEscape(a.LegID) + "/" + url.PathEscape(a.RecordingID)
}
