package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/mail"
)

type registerForm struct {
	Name  string
	Email string
}

func (s *Server) registerForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "registrarse", "Registrarse", registerForm{})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	form := registerForm{Name: r.PostFormValue("nombre"), Email: r.PostFormValue("email")}
	reg, err := s.svc.Auth.Register(r.Context(), s.origin(r), form.Name, form.Email, r.PostFormValue("password"))
	var uerr *auth.UserError
	if errors.As(err, &uerr) {
		s.flashNow(w, r, http.StatusUnprocessableEntity, "registrarse", "Registrarse", uerr, form)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if reg.Mailed {
		msgs := []flashMessage{{"success", "¡Cuenta registrada correctamente! Revisa tu correo para verificar la cuenta."}}
		if s.cfg.Server.Debug && reg.VerifyURL != "" {
			msgs = append(msgs, flashMessage{"secondary", "Enlace de verificación (solo dev): " + reg.VerifyURL})
		}
		s.flashes(w, msgs...)
	} else {
		s.flash(w, "info", "¡Cuenta registrada correctamente! Luego podrás verificar tu correo para tener acceso a todas las funcionalidades de la web.")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// flashNow re-renders a form with a message shown on the same response.
func (s *Server) flashNow(w http.ResponseWriter, r *http.Request, status int, page, title string, uerr *auth.UserError, data any) {
	s.renderPage(w, r, status, page, title, data, flashMessage{uerr.Category, uerr.Message})
}

type loginForm struct {
	Next string
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "iniciar_sesion", "Iniciar sesión", loginForm{Next: safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if next == "" {
		next = safeNext(r.PostFormValue("next"))
	}
	u, err := s.svc.Auth.Authenticate(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	var uerr *auth.UserError
	if errors.As(err, &uerr) {
		s.flash(w, uerr.Category, uerr.Message)
		target := "/login"
		if next != "" {
			target += "?next=" + url.QueryEscape(next)
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	token, expires, persistent, err := s.svc.Auth.StartSession(u, r.PostFormValue("remember") != "")
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		cookie.Expires = expires
		cookie.MaxAge = int(time.Until(expires).Seconds())
	}
	http.SetCookie(w, cookie)
	s.flash(w, "success", "Has iniciado sesión.")
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w, sessionCookie)
	if CurrentUser(r.Context()) != nil {
		s.flash(w, "info", "Sesión cerrada.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) forgotPasswordForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "forgot_password", "Recuperar contraseña", nil)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Auth.RequestPasswordReset(r.Context(), s.origin(r), r.PostFormValue("email")); err != nil {
		s.logger.Error("Password reset request failed", zap.Error(err))
	}
	s.flash(w, "info", "Si el correo existe, te enviaremos instrucciones.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type resetForm struct {
	Token string
	Email string
}

func (s *Server) resetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	u, err := s.svc.Auth.CheckResetToken(r.Context(), token)
	if err != nil {
		s.authRedirect(w, r, err, "/forgot-password")
		return
	}
	s.render(w, r, http.StatusOK, "reset_password", "Nueva contraseña", resetForm{Token: token, Email: u.Email})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	err := s.svc.Auth.ResetPassword(r.Context(), token, r.PostFormValue("password"), r.PostFormValue("confirm"))
	switch {
	case err == nil:
		s.flash(w, "success", "Contraseña actualizada. Ya puedes iniciar sesión.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.Is(err, auth.ErrPasswordMismatch), errors.Is(err, auth.ErrWeakPassword):
		s.authRedirect(w, r, err, "/reset-password/"+url.PathEscape(token))
	default:
		s.authRedirect(w, r, err, "/forgot-password")
	}
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	already, err := s.svc.Auth.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	switch {
	case errors.Is(err, auth.ErrLinkExpired):
		s.flash(w, "warning", "Enlace inválido o caducado. Solicita un reenvío.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case err != nil:
		s.authRedirect(w, r, err, "/login")
	case already:
		s.flash(w, "info", "Tu correo ya estaba verificado.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		s.flash(w, "success", "¡Email verificado!")
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) resendVerification(w http.ResponseWriter, r *http.Request) {
	already, err := s.svc.Auth.ResendVerification(r.Context(), s.origin(r), *CurrentUser(r.Context()))
	switch {
	case err != nil:
		s.logger.Warn("Verification resend failed", zap.Error(err))
		s.flash(w, "warning", "No pudimos reenviar ahora. Intenta más tarde.")
	case already:
		s.flash(w, "info", "Tu correo ya está verificado.")
	default:
		s.flash(w, "info", "Te reenviamos el correo de verificación.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) testMail(w http.ResponseWriter, r *http.Request) {
	to := s.cfg.ContactAddress()
	if mail.IsPlaceholderAddress(to) {
		s.logger.Warn("Test mail blocked for placeholder domain", zap.String("to", to))
		http.Error(w, "Destinatario inválido para test (dominio de ejemplo). Configura CONTACT_TO.", http.StatusBadRequest)
		return
	}
	if err := s.svc.Mailer.Send(r.Context(), mail.TestEmail(to)); err != nil {
		s.logger.Error("Test mail failed", zap.Error(err))
		http.Error(w, "No se pudo enviar el correo de prueba.", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Correo de prueba enviado a " + to))
}

// authRedirect flashes a visitor-facing error and redirects to target.
func (s *Server) authRedirect(w http.ResponseWriter, r *http.Request, err error, target string) {
	var uerr *auth.UserError
	if !errors.As(err, &uerr) {
		s.serverError(w, r, err)
		return
	}
	s.flash(w, uerr.Category, uerr.Message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}
