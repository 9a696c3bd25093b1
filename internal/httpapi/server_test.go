package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-ops/internal/auth"
	"wedding-ops/internal/checkin"
	"wedding-ops/internal/handler"
	"wedding-ops/internal/materialize"
	"wedding-ops/internal/seating"
	"wedding-ops/internal/storage"
	"wedding-ops/internal/testutil"
)

type testServer struct {
	router   *gin.Engine
	records  *storage.Records
	operator string
	guest    string
}

func newTestServer(t *testing.T, limiter *IPRateLimiter) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	records, _ := testutil.NewRecords(t)
	clock := testutil.NewClock(testutil.ReferenceTime())
	issuer, err := auth.NewIssuer("test-secret", time.Hour, clock.Now)
	require.NoError(t, err)

	m := materialize.NewMaterializer(records, testutil.NewIDGenerator("g").Next, clock.Now, zerolog.Nop())
	rsvps := handler.NewRSVPHandler(records, m, nil, handler.Config{}, testutil.NewIDGenerator("r").Next, clock.Now, zerolog.Nop())

	router := NewRouter(Deps{
		Records:      records,
		Issuer:       issuer,
		RSVPs:        rsvps,
		Materializer: m,
		Seating:      seating.NewEngine(records, clock.Now, zerolog.Nop()),
		CheckIn:      checkin.NewService(records, clock.Now, zerolog.Nop()),
		Limiter:      limiter,
		Logger:       zerolog.Nop(),
	}, Options{})

	operator, err := issuer.Issue("op-1", auth.RoleOperator)
	require.NoError(t, err)
	guest, err := issuer.Issue("u1", auth.RoleRespondent)
	require.NoError(t, err)
	return testServer{router: router, records: records, operator: operator, guest: guest}
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var annSubmission = map[string]any{
	"firstName":          "Ann",
	"lastName":           "Lee",
	"side":               "bride",
	"isComing":           "yes",
	"accompanyingGuests": []map[string]string{{"name": "Bo", "relationToMain": "partner"}},
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"missing token", "/api/rsvps/me", "", http.StatusUnauthorized},
		{"garbage token", "/api/rsvps/me", "not-a-jwt", http.StatusUnauthorized},
		{"respondent on operator route", "/api/ops/groups", s.guest, http.StatusForbidden},
		{"operator on operator route", "/api/ops/groups", s.operator, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestSubmitAndReadBack(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/rsvps/me", s.guest, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["kind"])

	w = s.do(t, http.MethodPost, "/api/rsvps", s.guest, annSubmission)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	mat := body["materialization"].(map[string]any)
	assert.EqualValues(t, 2, mat["created"])

	w = s.do(t, http.MethodGet, "/api/rsvps/me", s.guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "g-2", decode(t, w)["guestId"])

	w = s.do(t, http.MethodGet, "/api/ops/rsvps/r-1/guests", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	guests := decode(t, w)["guests"].([]any)
	require.Len(t, guests, 2)
	assert.Equal(t, "g-2", guests[0].(map[string]any)["id"])
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/rsvps", s.guest, map[string]any{"isComing": "maybe"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation", body["kind"])
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "firstName")
	assert.Contains(t, fields, "isComing")

	w = s.do(t, http.MethodPost, "/api/rsvps", s.guest, "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRateLimited(t *testing.T) {
	s := newTestServer(t, NewIPRateLimiter(1, 1, time.Minute))

	w := s.do(t, http.MethodPost, "/api/rsvps", s.guest, annSubmission)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/api/rsvps", s.guest, annSubmission)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Reads are not limited.
	w = s.do(t, http.MethodGet, "/api/rsvps/me", s.guest, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGroupsAndCheckIn(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/rsvps", s.guest, annSubmission).Code)

	w := s.do(t, http.MethodGet, "/api/ops/groups/r-1", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	group := decode(t, w)
	assert.Equal(t, "Ann Lee", group["groupName"])
	assert.EqualValues(t, 2, group["totalCount"])

	w = s.do(t, http.MethodGet, "/api/ops/groups/missing", s.operator, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/ops/guests/g-2/checkin", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["cascaded"])

	w = s.do(t, http.MethodPost, "/api/ops/groups/r-1/toggle", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, checkin.ActionUncheck, res["action"])
	assert.EqualValues(t, 2, res["success"])

	w = s.do(t, http.MethodPost, "/api/ops/guests/nobody/checkin", s.operator, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckInDeclined(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/rsvps", s.guest, annSubmission).Code)

	decline := map[string]any{"firstName": "Ann", "lastName": "Lee", "side": "bride", "isComing": "no",
		"accompanyingGuests": annSubmission["accompanyingGuests"]}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/rsvps", s.guest, decline).Code)

	w := s.do(t, http.MethodPost, "/api/ops/guests/g-2/checkin", s.operator, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "declined", decode(t, w)["kind"])
}

func TestSetDispositionThenCheckIn(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/rsvps", s.guest, annSubmission).Code)

	guests, err := s.records.Guests(context.Background())
	require.NoError(t, err)
	var companion string
	for _, g := range guests {
		if g.ID != "g-2" {
			companion = g.ID
		}
	}
	require.NotEmpty(t, companion)

	w := s.do(t, http.MethodPut, "/api/ops/guests/"+companion+"/disposition", s.operator, map[string]string{"isComing": "no"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no", decode(t, w)["isComing"])

	w = s.do(t, http.MethodPost, "/api/ops/guests/g-2/checkin", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["cascaded"])

	w = s.do(t, http.MethodPost, "/api/ops/guests/"+companion+"/checkin", s.operator, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/ops/guests/"+companion+"/disposition", s.operator, map[string]string{"isComing": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPut, "/api/ops/guests/nobody/disposition", s.operator, map[string]string{"isComing": "yes"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPut, "/api/ops/guests/"+companion+"/disposition", s.guest, map[string]string{"isComing": "yes"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSeatingRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/rsvps", s.guest, annSubmission).Code)

	w := s.do(t, http.MethodPut, "/api/ops/tables/t1", s.operator, map[string]any{"zoneId": "garden", "capacity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPut, "/api/ops/zones/garden", s.operator, map[string]any{"zoneName": "Garden"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPut, "/api/ops/tables/t1", s.operator, map[string]any{"zoneId": "garden", "tableName": "T1", "capacity": 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/ops/tables/t1/assign", s.operator, map[string]any{"guestIds": []string{"g-2", "g-3"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["successCount"])
	assert.EqualValues(t, 1, body["tableFull"])

	w = s.do(t, http.MethodPost, "/api/ops/tables/t1/assign", s.operator, map[string]any{"guestIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/ops/seating", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	layout := decode(t, w)
	assert.EqualValues(t, 1, layout["seated"])
	assert.EqualValues(t, 1, layout["unseated"])

	w = s.do(t, http.MethodDelete, "/api/ops/tables/t1", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	g, err := s.records.Guest(context.Background(), "g-2")
	require.NoError(t, err)
	assert.False(t, g.Seated())
}

func TestLoadLayoutRoute(t *testing.T) {
	s := newTestServer(t, nil)

	yamlBody := strings.Join([]string{
		"zones:",
		"  - id: garden",
		"    name: Garden",
		"    tables:",
		"      - id: t1",
		"        name: Table 1",
		"        capacity: 10",
	}, "\n")
	w := s.do(t, http.MethodPost, "/api/ops/seating/layout", s.operator, yamlBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"zones":1,"tables":1}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/ops/seating/layout", s.operator, "zones:\n  - id: x\n    bogus: 1\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
