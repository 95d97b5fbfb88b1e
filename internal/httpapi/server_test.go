package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"formcore/internal/auth"
	"formcore/internal/core"
	"formcore/internal/httpapi"
	"formcore/internal/infra/persistence/memory"
	"formcore/internal/metrics"
	"formcore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type harness struct {
	t   *testing.T
	srv *httpapi.Server
}

func newHarness(t *testing.T, opts ...httpapi.Option) *harness {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	svc := core.NewService(store)
	reg := auth.NewRegistry(store, auth.WithBcryptCost(bcrypt.MinCost))
	sessions := auth.NewSessions([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210"))
	return &harness{t: t, srv: httpapi.New(svc, reg, sessions, opts...)}
}

func (h *harness) do(method, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func (h *harness) register(username string) []*http.Cookie {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/register", url.Values{
		"username":         {username},
		"email":            {username + "@example.com"},
		"password":         {"password123"},
		"confirm_password": {"password123"},
	}, nil)
	require.Equal(h.t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(h.t, "/dashboard", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(h.t, cookies)
	return cookies
}

// createForm returns the new form's ID parsed from the redirect target.
func (h *harness) createForm(cookies []*http.Cookie, title string) string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/dashboard/form/create", url.Values{"title": {title}}, cookies)
	require.Equal(h.t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(h.t, strings.HasPrefix(loc, "/dashboard/form/") && strings.HasSuffix(loc, "/fields"), loc)
	return strings.TrimSuffix(strings.TrimPrefix(loc, "/dashboard/form/"), "/fields")
}

func (h *harness) addField(cookies []*http.Cookie, formID string, values url.Values) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/dashboard/form/"+formID+"/fields", values, cookies)
	require.Equal(h.t, http.StatusSeeOther, rec.Code)
	require.Equal(h.t, "/dashboard/form/"+formID+"/fields", rec.Header().Get("Location"))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

type fieldsView struct {
	Form   domain.Form    `json:"form"`
	Fields []domain.Field `json:"fields"`
	Error  string         `json:"error"`
}

func TestDashboardRequiresLogin(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/dashboard", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=login+required", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/login?error=login+required", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Error string `json:"error"`
	}
	decode(t, rec, &view)
	assert.Equal(t, "login required", view.Error)
}

func TestFormLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	bob := h.register("bob")

	formID := h.createForm(alice, "Survey")
	h.addField(alice, formID, url.Values{"label": {"Name"}, "field_type": {"text"}, "required": {"on"}})
	h.addField(alice, formID, url.Values{"label": {"Colors"}, "field_type": {"checkbox"}, "options": {"red, green, blue"}})

	rec := h.do(http.MethodGet, "/dashboard/form/"+formID+"/fields", nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var fields fieldsView
	decode(t, rec, &fields)
	require.Len(t, fields.Fields, 2)
	name, colors := fields.Fields[0], fields.Fields[1]
	assert.True(t, name.Required)
	assert.Equal(t, []string{"red", "green", "blue"}, colors.Options())

	rec = h.do(http.MethodGet, "/form/"+formID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/form/"+formID, url.Values{
		name.ID:   {"Bob"},
		colors.ID: {"red", "blue"},
	}, bob)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/form/"+formID, url.Values{colors.ID: {"red"}}, bob)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/form/"+formID, loc.Path)
	assert.Equal(t, "a value is required", loc.Query().Get("error"))

	rec = h.do(http.MethodGet, "/dashboard/form/"+formID+"/responses", nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var table struct {
		Headers []string `json:"headers"`
		Rows    []struct {
			Cells []string `json:"Cells"`
		} `json:"rows"`
	}
	decode(t, rec, &table)
	assert.Equal(t, []string{"Submission Time", "Name", "Colors"}, table.Headers)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"Bob", "red,blue"}, table.Rows[0].Cells)

	rec = h.do(http.MethodGet, "/dashboard/form/"+formID+"/export", nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Survey_responses.csv"`, rec.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Submission Time,Name,Colors", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], `,Bob,"red,blue"`), lines[1])
}

func TestFieldEditAndDelete(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	formID := h.createForm(alice, "Poll")
	h.addField(alice, formID, url.Values{"label": {"Pick"}, "field_type": {"radio"}, "options": {"a,b"}})

	var view fieldsView
	decode(t, h.do(http.MethodGet, "/dashboard/form/"+formID+"/fields", nil, alice), &view)
	fieldID := view.Fields[0].ID
	base := "/dashboard/form/" + formID + "/fields/" + fieldID

	rec := h.do(http.MethodPost, base+"/edit", url.Values{"label": {"Choose"}, "field_type": {"select"}, "options": {"a,b,c"}}, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	decode(t, h.do(http.MethodGet, "/dashboard/form/"+formID+"/fields", nil, alice), &view)
	assert.Equal(t, "Choose", view.Fields[0].Label)
	assert.Equal(t, domain.FieldSelect, view.Fields[0].Type)

	rec = h.do(http.MethodPost, base+"/edit", url.Values{"label": {"Choose"}, "field_type": {"slider"}}, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/dashboard/form/"+formID+"/fields", loc.Path)
	assert.Contains(t, loc.Query().Get("error"), "slider")

	rec = h.do(http.MethodPost, base+"/delete", nil, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	decode(t, h.do(http.MethodGet, "/dashboard/form/"+formID+"/fields", nil, alice), &view)
	assert.Empty(t, view.Fields)
}

func TestFieldRoutesRequireMatchingForm(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	formA := h.createForm(alice, "A")
	formB := h.createForm(alice, "B")
	h.addField(alice, formB, url.Values{"label": {"Pick"}, "field_type": {"text"}})

	var view fieldsView
	decode(t, h.do(http.MethodGet, "/dashboard/form/"+formB+"/fields", nil, alice), &view)
	require.Len(t, view.Fields, 1)
	fieldID := view.Fields[0].ID
	crossed := "/dashboard/form/" + formA + "/fields/" + fieldID

	rec := h.do(http.MethodPost, crossed+"/edit", url.Values{"label": {"Renamed"}, "field_type": {"text"}}, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/dashboard?error="), rec.Header().Get("Location"))

	rec = h.do(http.MethodPost, crossed+"/delete", nil, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/dashboard?error="), rec.Header().Get("Location"))

	decode(t, h.do(http.MethodGet, "/dashboard/form/"+formB+"/fields", nil, alice), &view)
	require.Len(t, view.Fields, 1)
	assert.Equal(t, "Pick", view.Fields[0].Label)
}

func TestSessionForUnknownUserIsAnonymous(t *testing.T) {
	cookies := newHarness(t).register("alice")

	// same session keys, empty store
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/dashboard", nil, cookies)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?error=login+required", rec.Header().Get("Location"))
}

func TestForeignAndMissingFormsLookAlike(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	bob := h.register("bob")
	formID := h.createForm(alice, "Private")

	for _, suffix := range []string{"/responses", "/export", "/fields"} {
		foreign := h.do(http.MethodGet, "/dashboard/form/"+formID+suffix, nil, bob)
		missing := h.do(http.MethodGet, "/dashboard/form/does-not-exist"+suffix, nil, bob)
		assert.Equal(t, http.StatusSeeOther, foreign.Code, suffix)
		assert.Equal(t, foreign.Code, missing.Code, suffix)
		assert.Equal(t, foreign.Header().Get("Location"), missing.Header().Get("Location"), suffix)
		assert.True(t, strings.HasPrefix(foreign.Header().Get("Location"), "/dashboard?error="), suffix)
	}

	rec := h.do(http.MethodPost, "/dashboard/form/"+formID+"/delete", nil, bob)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	rec = h.do(http.MethodGet, "/form/"+formID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDuplicateAndDeleteForm(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	formID := h.createForm(alice, "Original")

	rec := h.do(http.MethodPost, "/dashboard/form/"+formID+"/duplicate", nil, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = h.do(http.MethodPost, "/dashboard/form/"+formID+"/edit", url.Values{"title": {"Renamed"}}, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	var dash struct {
		Forms []domain.Form `json:"forms"`
	}
	decode(t, h.do(http.MethodGet, "/dashboard", nil, alice), &dash)
	var titles []string
	for _, f := range dash.Forms {
		titles = append(titles, f.Title)
	}
	assert.ElementsMatch(t, []string{"Renamed", "Original (Copy)"}, titles)

	rec = h.do(http.MethodPost, "/dashboard/form/"+formID+"/edit", url.Values{"title": {"  "}}, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/dashboard?error="))

	rec = h.do(http.MethodPost, "/dashboard/form/"+formID+"/delete", nil, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/form/"+formID, nil, nil).Code)

	decode(t, h.do(http.MethodGet, "/", nil, nil), &dash)
	require.Len(t, dash.Forms, 1)
	assert.Equal(t, "Original (Copy)", dash.Forms[0].Title)
}

func TestAnonymousSubmissionDeniedByDefault(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	formID := h.createForm(alice, "Feedback")

	rec := h.do(http.MethodPost, "/form/"+formID, url.Values{}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/form/"+formID+"?error="))

	rec = h.do(http.MethodPost, "/form/missing", url.Values{}, alice)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t)
	h.register("alice")

	rec := h.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"nope"}}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login?error="))

	rec = h.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"password123"}}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/dashboard", nil, cookies).Code)

	rec = h.do(http.MethodPost, "/logout", nil, cookies)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)

	rec = h.do(http.MethodPost, "/register", url.Values{"username": {"alice"}, "email": {"x@example.com"}, "password": {"password123"}, "confirm_password": {"password123"}}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/register?error="))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, httpapi.WithMetrics(metrics.New(false)))
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/", nil, nil).Code)

	rec := h.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `formcore_http_requests_total{method="GET",route="/",status="200"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(http.MethodDelete, "/", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
