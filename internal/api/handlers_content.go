package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/content"
	"github.com/canalenergetico/canal-web/internal/store"
)

const imageField = "imagen"

func (s *Server) staticPage(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, name, title, nil)
	}
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	home, err := s.svc.Content.Home(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "index", "", home)
}

type listingView struct {
	content.Listing
	PrevURL string
	NextURL string
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := s.svc.Content.List(r.Context(), q.Get("q"), q.Get("tag"), pageNumber(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	view := listingView{Listing: listing}
	pageURL := func(n int) string {
		v := url.Values{}
		if listing.Query != "" {
			v.Set("q", listing.Query)
		}
		if listing.Tag != "" {
			v.Set("tag", listing.Tag)
		}
		v.Set("page", strconv.Itoa(n))
		return "/articulos?" + v.Encode()
	}
	if listing.HasPrev() {
		view.PrevURL = pageURL(listing.Page - 1)
	}
	if listing.HasNext() {
		view.NextURL = pageURL(listing.Page + 1)
	}
	s.render(w, r, http.StatusOK, "articulos", "Artículos", view)
}

type commentView struct {
	store.Comment
	CanManage bool
}

type articleView struct {
	Article  store.Article
	Comments []commentView
}

func (s *Server) showArticle(w http.ResponseWriter, r *http.Request) {
	a, comments, err := s.svc.Content.Article(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	user := CurrentUser(r.Context())
	view := articleView{Article: a, Comments: make([]commentView, 0, len(comments))}
	for _, c := range comments {
		view.Comments = append(view.Comments, commentView{Comment: c, CanManage: s.svc.Content.CanManageComment(user, c)})
	}
	s.render(w, r, http.StatusOK, "post", a.Title, view)
}

func (s *Server) postComment(w http.ResponseWriter, r *http.Request) {
	articleSlug := chi.URLParam(r, "slug")
	user := CurrentUser(r.Context())
	if user == nil {
		s.flash(w, "warning", "Debes iniciar sesión para comentar.")
		http.Redirect(w, r, "/login?next="+url.QueryEscape("/articulos/"+articleSlug), http.StatusSeeOther)
		return
	}
	_, err := s.svc.Content.AddComment(r.Context(), user, articleSlug, r.PostFormValue("comentario"))
	var verr *content.ValidationError
	switch {
	case err == nil:
		s.flash(w, "success", "Comentario publicado.")
	case errors.As(err, &verr):
		s.flash(w, "warning", verr.Message)
	default:
		s.contentError(w, r, err)
		return
	}
	http.Redirect(w, r, "/articulos/"+url.PathEscape(articleSlug)+"#comentarios", http.StatusSeeOther)
}

type articleForm struct {
	Input   content.ArticleInput
	IsEdit  bool
	Action  string
	Message string
}

func (s *Server) newArticleForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "make-post", "Nuevo artículo", articleForm{Action: "/new-post"})
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := s.readArticleForm(r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "make-post", "Nuevo artículo", articleForm{Action: "/new-post", Message: err.Error()})
		return
	}
	defer cleanup()
	a, err := s.svc.Content.Create(r.Context(), in)
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		in.Image = nil
		s.render(w, r, http.StatusUnprocessableEntity, "make-post", "Nuevo artículo",
			articleForm{Input: in, Action: "/new-post", Message: verr.Message})
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.flash(w, "success", "Artículo publicado.")
	http.Redirect(w, r, "/articulos/"+url.PathEscape(a.Slug), http.StatusSeeOther)
}

func (s *Server) editArticleForm(w http.ResponseWriter, r *http.Request) {
	a, _, err := s.svc.Content.Article(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	tags := a.LegacyTag
	if len(a.Tags) > 0 {
		tags = a.TagNames()
	}
	in := content.ArticleInput{
		Title:       a.Title,
		Description: a.Description,
		ImageURL:    a.ImageURL,
		ImageSource: a.ImageSource,
		Tags:        tags,
		Author:      a.Author,
		Content:     a.Content,
	}
	s.render(w, r, http.StatusOK, "make-post", "Editar artículo",
		articleForm{Input: in, IsEdit: true, Action: "/edit-post/" + url.PathEscape(a.Slug)})
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	articleSlug := chi.URLParam(r, "slug")
	action := "/edit-post/" + url.PathEscape(articleSlug)
	in, cleanup, err := s.readArticleForm(r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "make-post", "Editar artículo",
			articleForm{IsEdit: true, Action: action, Message: err.Error()})
		return
	}
	defer cleanup()
	a, err := s.svc.Content.Update(r.Context(), articleSlug, in)
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		in.Image = nil
		s.render(w, r, http.StatusUnprocessableEntity, "make-post", "Editar artículo",
			articleForm{Input: in, IsEdit: true, Action: action, Message: verr.Message})
		return
	}
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	s.flash(w, "success", "Artículo actualizado.")
	http.Redirect(w, r, "/articulos/"+url.PathEscape(a.Slug), http.StatusSeeOther)
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Content.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		s.contentError(w, r, err)
		return
	}
	s.flash(w, "info", "Artículo eliminado.")
	http.Redirect(w, r, "/articulos", http.StatusSeeOther)
}

// readArticleForm decodes the editor form. cleanup releases multipart files.
func (s *Server) readArticleForm(r *http.Request) (content.ArticleInput, func(), error) {
	noop := func() {}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if r.MultipartForm == nil {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				return content.ArticleInput{}, noop, errors.New("formulario inválido")
			}
		}
	} else if err := r.ParseForm(); err != nil {
		return content.ArticleInput{}, noop, errors.New("formulario inválido")
	}
	in := content.ArticleInput{
		Title:       r.FormValue("titulo"),
		Description: r.FormValue("descripcion"),
		ImageURL:    r.FormValue("img_url"),
		ImageSource: r.FormValue("img_fuente"),
		Tags:        r.FormValue("tags"),
		Author:      r.FormValue("autor"),
		Content:     r.FormValue("contenido"),
	}
	cleanup := noop
	if r.MultipartForm != nil {
		cleanup = func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				s.logger.Debug("Remove multipart files failed", zap.Error(err))
			}
		}
		if file, header, err := r.FormFile(imageField); err == nil {
			in.Image = &content.Upload{Filename: header.Filename, Body: file}
			prev := cleanup
			cleanup = func() {
				_ = file.Close()
				prev()
			}
		}
	}
	return in, cleanup, nil
}

type tagView struct {
	Tag      store.Tag
	Articles []store.Article
}

func (s *Server) articlesByTag(w http.ResponseWriter, r *http.Request) {
	t, items, err := s.svc.Content.ByTag(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "articulos_por_tag", t.Name, tagView{Tag: t, Articles: items})
}

func (s *Server) searchByTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.Content.SearchByTags(r.Context(), q.Get("tags"), q.Get("modo"))
	if errors.Is(err, content.ErrNoTags) {
		http.Redirect(w, r, "/articulos", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "buscar_por_tags", "Buscar por etiquetas", res)
}

func (s *Server) editComment(w http.ResponseWriter, r *http.Request) {
	id, ok := commentID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	c, err := s.svc.Content.EditComment(r.Context(), CurrentUser(r.Context()), id, r.PostFormValue("comentario"))
	var verr *content.ValidationError
	switch {
	case err == nil:
		s.flash(w, "success", "Comentario actualizado.")
	case errors.As(err, &verr) && c.ArticleSlug != "":
		s.flash(w, "warning", verr.Message)
	default:
		s.contentError(w, r, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/articulos/%s#c%d", url.PathEscape(c.ArticleSlug), c.ID), http.StatusSeeOther)
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := commentID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	c, err := s.svc.Content.DeleteComment(r.Context(), CurrentUser(r.Context()), id)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	s.flash(w, "info", "Comentario eliminado.")
	http.Redirect(w, r, "/articulos/"+url.PathEscape(c.ArticleSlug)+"#comentarios", http.StatusSeeOther)
}

func commentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// contentError maps service errors to pages.
func (s *Server) contentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.notFound(w, r)
	case errors.Is(err, content.ErrForbidden):
		s.renderError(w, r, http.StatusForbidden)
	case errors.Is(err, content.ErrLoginRequired):
		s.redirectToLogin(w, r)
	default:
		s.serverError(w, r, err)
	}
}
