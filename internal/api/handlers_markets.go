package api

import (
	"errors"
	"net/http"

	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/markets"
	"go.uber.org/zap"
)

type marketsView struct {
	Note     string
	NoteDate string
	CanEdit  bool
}

func (s *Server) marketsPage(w http.ResponseWriter, r *http.Request) {
	note, err := s.svc.Markets.Note(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	view := marketsView{
		Note:    note.Content,
		CanEdit: s.svc.Authz != nil && s.svc.Authz.Allowed(CurrentUser(r.Context()), auth.ObjMarketsNote, auth.ActWrite),
	}
	if !note.UpdatedAt.IsZero() {
		view.NoteDate = note.UpdatedAt.Format("02/01/2006")
	}
	s.render(w, r, http.StatusOK, "mercados", "Mercados", view)
}

func (s *Server) marketsDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.svc.Markets.Dashboard(r.Context(), r.URL.Query().Get("s"))
	if err != nil {
		s.logger.Warn("Dashboard unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "dashboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) updateMarketsNote(w http.ResponseWriter, r *http.Request) {
	_, err := s.svc.Markets.UpdateNote(r.Context(), CurrentUser(r.Context()), r.PostFormValue("content"))
	switch {
	case errors.Is(err, markets.ErrEmptyNote):
		s.flash(w, "warning", "Escribe el comentario antes de guardar.")
	case err != nil:
		s.serverError(w, r, err)
		return
	default:
		s.flash(w, "success", "Comentario de mercados actualizado.")
	}
	http.Redirect(w, r, "/mercados", http.StatusSeeOther)
}
