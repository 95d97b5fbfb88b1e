package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"formcore/internal/core"
	"formcore/pkg/domain"

	"github.com/gorilla/mux"
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	forms, err := s.service.ListPublicForms(r.Context())
	if err != nil {
		s.fail(w, r, err, "/")
		return
	}
	writeView(w, r, map[string]any{"forms": forms, "identity": identity(r)})
}

func (s *Server) handleAccountView(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, map[string]any{"identity": identity(r)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	user, err := s.registry.CreateIdentity(r.Context(),
		r.PostFormValue("username"),
		r.PostFormValue("email"),
		r.PostFormValue("password"),
		r.PostFormValue("confirm_password"),
	)
	if err != nil {
		s.fail(w, r, err, "/register")
		return
	}
	if err := s.sessions.Issue(w, domain.IdentityOf(user)); err != nil {
		s.fail(w, r, err, "/login")
		return
	}
	s.logger.Info("identity registered", "user_id", user.ID, "username", user.Username)
	redirect(w, r, "/dashboard", "")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	id, err := s.registry.Authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		s.fail(w, r, err, "/login")
		return
	}
	if err := s.sessions.Issue(w, id); err != nil {
		s.fail(w, r, err, "/login")
		return
	}
	redirect(w, r, "/dashboard", "")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	redirect(w, r, "/", "")
}

func (s *Server) handleViewForm(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.GetForm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err, "/")
		return
	}
	writeView(w, r, map[string]any{"form": detail.Form, "fields": detail.Fields})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["id"]
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	// Checkbox groups post one value per ticked option.
	values := make(map[string]string, len(r.PostForm))
	for key, vs := range r.PostForm {
		values[key] = strings.Join(vs, ",")
	}
	resp, err := s.service.SubmitResponse(r.Context(), identity(r), formID, values)
	if err != nil {
		s.fail(w, r, err, "/form/"+formID)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"submitted": true, "response": resp})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	forms, err := s.service.ListForms(r.Context(), identity(r))
	if err != nil {
		s.fail(w, r, err, "/")
		return
	}
	writeView(w, r, map[string]any{"forms": forms, "identity": identity(r)})
}

func formInput(r *http.Request) core.FormInput {
	return core.FormInput{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
	}
}

func fieldInput(r *http.Request) core.FieldInput {
	return core.FieldInput{
		Label:    r.PostFormValue("label"),
		Type:     r.PostFormValue("field_type"),
		Options:  r.PostFormValue("options"),
		Required: checked(r.PostFormValue("required")),
	}
}

func checked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on":
		return true
	default:
		b, _ := strconv.ParseBool(v)
		return b
	}
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	form, err := s.service.CreateForm(r.Context(), identity(r), formInput(r))
	if err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	redirect(w, r, fieldsPath(form.ID), "")
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	if _, err := s.service.EditForm(r.Context(), identity(r), mux.Vars(r)["id"], formInput(r)); err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	redirect(w, r, "/dashboard", "")
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteForm(r.Context(), identity(r), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	redirect(w, r, "/dashboard", "")
}

func (s *Server) handleDuplicateForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.DuplicateForm(r.Context(), identity(r), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	redirect(w, r, "/dashboard", "")
}

func fieldsPath(formID string) string {
	return "/dashboard/form/" + formID + "/fields"
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.ListFields(r.Context(), identity(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	writeView(w, r, map[string]any{"form": detail.Form, "fields": detail.Fields})
}

func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["id"]
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	if _, err := s.service.AddField(r.Context(), identity(r), formID, fieldInput(r)); err != nil {
		s.fail(w, r, err, s.fieldErrorTarget(err, formID))
		return
	}
	redirect(w, r, fieldsPath(formID), "")
}

func (s *Server) handleEditField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	if err := s.fieldOnForm(r, vars["id"], vars["fieldID"], "edit_field"); err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	field, err := s.service.EditField(r.Context(), identity(r), vars["fieldID"], fieldInput(r))
	if err != nil {
		s.fail(w, r, err, s.fieldErrorTarget(err, vars["id"]))
		return
	}
	redirect(w, r, fieldsPath(field.FormID), "")
}

func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.fieldOnForm(r, vars["id"], vars["fieldID"], "delete_field"); err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	if err := s.service.DeleteField(r.Context(), identity(r), vars["fieldID"]); err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	redirect(w, r, fieldsPath(vars["id"]), "")
}

// fieldOnForm rejects a field route whose field is not on the form named in
// the path. Mismatches are reported as denied, like foreign forms.
func (s *Server) fieldOnForm(r *http.Request, formID, fieldID, op string) error {
	detail, err := s.service.ListFields(r.Context(), identity(r), formID)
	if err != nil {
		return err
	}
	for _, f := range detail.Fields {
		if f.ID == fieldID {
			return nil
		}
	}
	return domain.PermissionError{Operation: op}
}

// fieldErrorTarget picks the field page for rejected input and the dashboard
// for denied access.
func (s *Server) fieldErrorTarget(err error, formID string) string {
	if errors.Is(err, domain.ErrValidation) {
		return fieldsPath(formID)
	}
	return "/dashboard"
}

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	table, err := s.service.Aggregate(r.Context(), identity(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	writeView(w, r, map[string]any{"form": table.Form, "headers": table.Headers, "rows": table.Rows})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := s.service.ExportResponses(r.Context(), identity(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err, "/dashboard")
		return
	}
	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", exp.ContentDisposition())
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exp.Data)
}
