package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/database"
	"github.com/camden-git/civicregistry/metrics"
	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/permissions"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
	"github.com/camden-git/civicregistry/testutil"
)

type RouterSuite struct {
	suite.Suite
	db       *gorm.DB
	userRepo repository.UserRepository
	roleRepo repository.RoleRepository
	tokens   *TokenIssuer
	router   http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.db = testutil.NewDB(s.T())
	s.userRepo = repository.NewGormUserRepository(s.db)
	s.roleRepo = repository.NewGormRoleRepository(s.db)
	s.Require().NoError(SyncSuperAdminRole(s.roleRepo, nil))
	s.tokens = NewTokenIssuer("test-secret", time.Hour)

	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	households := repository.NewGormHouseholdRepository(s.db)
	persons := repository.NewGormPersonRepository(s.db)
	history := repository.NewGormHistoryRepository(s.db)
	deps := services.Deps{DB: s.db, Households: households, Persons: persons, History: history, Metrics: m}

	s.router = NewRouter(RouterDeps{
		DB:         s.db,
		UserRepo:   s.userRepo,
		RoleRepo:   s.roleRepo,
		Households: services.NewHouseholdService(deps),
		Persons:    services.NewPersonService(deps),
		History:    services.NewHistoryService(households, history, m, nil),
		Statistics: services.NewStatisticsService(&failingStats{}, nil, time.Minute, m, nil),
		Residences: services.NewResidenceService(repository.NewGormResidenceRepository(s.db), persons, m, nil),
		Tokens:     s.tokens,
		Responder:  Responder{Diagnostic: true},
	})
}

// failingStats makes the statistics endpoint exercise the 500 path.
type failingStats struct{}

func (failingStats) CountHouseholds(context.Context) (int64, error) {
	return 0, errors.New("statistics backend offline")
}
func (failingStats) PersonsByStatus(context.Context) (map[string]int64, error) { return nil, nil }
func (failingStats) ActivePersonsByGender(context.Context) (map[string]int64, error) {
	return nil, nil
}
func (failingStats) ActivePersonsInAgeGroup(context.Context, database.AgeGroup, time.Time) (int64, error) {
	return 0, nil
}
func (failingStats) ActivePermitsByKind(context.Context, time.Time) (map[string]int64, error) {
	return nil, nil
}

func (s *RouterSuite) createUser(username, password string, perms ...string) *models.User {
	u := &models.User{Username: username, FullName: username, IsActive: true, GlobalPermissions: perms}
	s.Require().NoError(u.SetPassword(password))
	s.Require().NoError(s.userRepo.Create(u))
	return u
}

func (s *RouterSuite) tokenFor(u *models.User) string {
	token, _, err := s.tokens.Issue(u)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) message(rec *httptest.ResponseRecorder) APIError {
	var body APIError
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func registration(code string) map[string]interface{} {
	return map[string]interface{}{
		"household_code": code,
		"owner_name":     "Nguyen Thi Lan",
		"street":         "12 Hang Bac",
		"ward":           "Hang Dao",
		"district":       "Hoan Kiem",
		"district_id":    "HK",
		"household_type": "permanent",
		"issue_date":     "2020-01-02",
		"members": []map[string]interface{}{
			{"full_name": "Nguyen Thi Lan", "date_of_birth": "1985-03-14", "gender": "FEMALE", "relationship": "chủ hộ"},
			{"full_name": "Tran Van Minh", "date_of_birth": "1983-07-01", "gender": "MALE", "relationship": "husband", "identity_number": "001083000222"},
		},
	}
}

func (s *RouterSuite) TestAuthentication() {
	rec := s.do(http.MethodGet, "/api/households", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("Authentication required", s.message(rec).Message)

	rec = s.do(http.MethodGet, "/api/households", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	viewer := s.createUser("viewer", "pw", permissions.PersonView)
	rec = s.do(http.MethodGet, "/api/households", s.tokenFor(viewer), nil)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Contains(s.message(rec).Message, permissions.HouseholdView)

	other := NewTokenIssuer("another-secret", time.Hour)
	forged, _, err := other.Issue(viewer)
	s.Require().NoError(err)
	rec = s.do(http.MethodGet, "/api/persons", forged, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	viewer.IsActive = false
	s.Require().NoError(s.userRepo.Update(viewer))
	rec = s.do(http.MethodGet, "/api/persons", s.tokenFor(viewer), nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestLoginSetsCookie() {
	s.createUser("clerk", "s3cret", permissions.HouseholdView)

	rec := s.do(http.MethodPost, "/api/auth/login", "", LoginPayload{Username: "clerk", Password: "wrong"})
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", "", LoginPayload{Username: "clerk", Password: "s3cret"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var login LoginResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &login))
	s.NotEmpty(login.Token)
	s.Equal([]string{permissions.HouseholdView}, login.Permissions)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == TokenCookieName {
			cookie = c
		}
	}
	s.Require().NotNil(cookie)
	s.True(cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	s.router.ServeHTTP(me, req)
	s.Equal(http.StatusOK, me.Code)
	s.Contains(me.Body.String(), `"username":"clerk"`)
}

func (s *RouterSuite) TestHouseholdLifecycleOverHTTP() {
	clerk := s.createUser("clerk", "pw",
		permissions.HouseholdView, permissions.HouseholdCreate, permissions.HouseholdEdit,
		permissions.HouseholdSplit, permissions.HistoryView)
	token := s.tokenFor(clerk)

	rec := s.do(http.MethodPost, "/api/households", token, registration("HK0041"))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Household
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	s.Len(created.Persons, 2)
	s.Nil(created.Persons[0].Relationship)

	rec = s.do(http.MethodPost, "/api/households", token, registration("HK0041"))
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.message(rec).Message, "already exists")

	bad := registration("HK0050")
	bad["members"].([]map[string]interface{})[1]["identity_number"] = "12AB"
	rec = s.do(http.MethodPost, "/api/households", token, bad)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.message(rec).Message, "member 2:")

	rec = s.do(http.MethodGet, "/api/households/next-id?old=HK0041", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"household_code":"HK0042"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/households/next-id?old=4-1", token, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	path := fmt.Sprintf("/api/households/%d", created.ID)
	rec = s.do(http.MethodPut, path, token, map[string]interface{}{"owner_name": "Tran Van Minh", "version": 1})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPut, path, token, map[string]interface{}{"owner_name": "Someone", "version": 1})
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, path+"/split", token, map[string]interface{}{
		"owner_name": "Tran Van Minh",
		"person_ids": []uint{created.Persons[1].ID},
		"reason":     "own household",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/history/households?change_type=SPLIT", token, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var rows []services.HistoryRow
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &rows))
	s.Len(rows, 2)

	rec = s.do(http.MethodDelete, path, token, nil)
	s.Equal(http.StatusForbidden, rec.Code, "delete needs its own permission")

	rec = s.do(http.MethodGet, "/api/households/abc", token, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/api/households/999", token, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestInternalErrorsCarryDetailInDiagnosticMode() {
	analyst := s.createUser("analyst", "pw", permissions.StatisticsView)
	rec := s.do(http.MethodGet, "/api/statistics", s.tokenFor(analyst), nil)
	s.Equal(http.StatusInternalServerError, rec.Code)
	body := s.message(rec)
	s.Equal(internalErrorMessage, body.Message)
	s.Contains(body.Detail, "statistics backend offline")
}

func (s *RouterSuite) TestFirstAdminSetup() {
	rec := s.do(http.MethodPost, "/api/setup/admin", "", FirstAdminPayload{Username: "admin"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/setup/admin", "", FirstAdminPayload{Username: "admin", Password: "changeme"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/setup/admin", "", FirstAdminPayload{Username: "second", Password: "changeme"})
	s.Equal(http.StatusForbidden, rec.Code)

	admin, err := s.userRepo.GetByUsername("admin")
	s.Require().NoError(err)
	s.True(admin.HasGlobalPermission(permissions.HouseholdDelete))

	rec = s.do(http.MethodGet, "/api/admin/users", s.tokenFor(admin), nil)
	s.Equal(http.StatusOK, rec.Code)
}

func TestSyncSuperAdminRoleRestoresPermissions(t *testing.T) {
	db := testutil.NewDB(t)
	roles := repository.NewGormRoleRepository(db)
	require.NoError(t, SyncSuperAdminRole(roles, nil))

	role, err := roles.GetByName(models.SuperAdminRoleName)
	require.NoError(t, err)
	require.NoError(t, roles.SetRoleGlobalPermissions(role.ID, []string{permissions.HouseholdView}))

	require.NoError(t, SyncSuperAdminRole(roles, nil))
	role, err = roles.GetByName(models.SuperAdminRoleName)
	require.NoError(t, err)
	assert.ElementsMatch(t, permissions.GetAllPermissionKeys(), role.GlobalPermissions)
}

func TestTokenIssuerExpiry(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	start := time.Now()
	issuer.now = func() time.Time { return start }

	token, exp, err := issuer.Issue(&models.User{ID: 42})
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Minute).Unix(), exp.Unix())

	id, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	issuer.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = issuer.Verify(token)
	assert.Error(t, err)
}
