package api

import (
	"errors"
	"net/http"

	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/regulations"
	"go.uber.org/zap"
)

func (s *Server) regulationsPage(w http.ResponseWriter, r *http.Request) {
	canCreate := s.svc.Authz != nil && s.svc.Authz.Allowed(CurrentUser(r.Context()), auth.ObjRegulations, auth.ActWrite)
	s.render(w, r, http.StatusOK, "normativa", "Normativa", canCreate)
}

func (s *Server) regulationsJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := s.svc.Regulations.List(r.Context(), regulations.ListParams{
		Query:       q.Get("q"),
		Topic:       q.Get("tema"),
		Year:        q.Get("anio"),
		Institution: q.Get("institucion"),
		Type:        q.Get("tipo"),
		Order:       q.Get("orden"),
		Page:        q.Get("page"),
	})
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) suggestRegulation(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Regulations.Suggest(r.Context(), regulations.Suggestion{
		Name:    r.PostFormValue("nombre"),
		URL:     r.PostFormValue("url"),
		Comment: r.PostFormValue("comentario"),
	})
	if errors.Is(err, regulations.ErrMissingFields) {
		writeError(w, http.StatusBadRequest, "Faltan campos obligatorios.")
		return
	}
	if err != nil {
		s.logger.Error("Suggest regulation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createRegulation(w http.ResponseWriter, r *http.Request) {
	_, err := s.svc.Regulations.Create(r.Context(), regulations.CreateInput{
		Title:        r.PostFormValue("titulo_oficial"),
		PublishedOn:  r.PostFormValue("fecha_publicacion"),
		Institution:  r.PostFormValue("institucion"),
		Type:         r.PostFormValue("tipo"),
		Topic:        r.PostFormValue("tema"),
		Description:  r.PostFormValue("descripcion"),
		OfficialLink: r.PostFormValue("enlace_oficial"),
		PDFURL:       r.PostFormValue("pdf_url"),
		Slug:         r.PostFormValue("slug_url"),
	})
	var verr *regulations.ValidationError
	switch {
	case err == nil:
		s.flash(w, "success", "Normativa creada correctamente.")
	case errors.As(err, &verr):
		s.flash(w, "warning", verr.Message)
	default:
		s.logger.Error("Create regulation failed", zap.Error(err))
		s.flash(w, "danger", "No se pudo crear la normativa. Revisa los datos.")
	}
	http.Redirect(w, r, "/normativa", http.StatusSeeOther)
}
