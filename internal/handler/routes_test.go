package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/edu-records-api/internal/models"
	"github.com/noah-isme/edu-records-api/internal/service"
)

// userStore backs the auth and user services for router-level tests.
type userStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
	audits []models.AuditLog
}

func newUserStore(users ...*models.User) *userStore {
	s := &userStore{users: make(map[string]*models.User), tokens: make(map[string]*models.RefreshToken)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *userStore) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *userStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *userStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.users, id)
	return nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStore) FindByRollNumber(_ context.Context, roll string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.RollNumber != nil && *u.RollNumber == roll {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *userStore) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

func (s *userStore) UpdatePassword(context.Context, string, string, time.Time) error { return nil }

func (s *userStore) RevokeUserRefreshTokens(context.Context, string) error { return nil }

func (s *userStore) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Token] = token
	return nil
}

func (s *userStore) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStore) RevokeRefreshToken(context.Context, string, time.Time) error { return nil }

func (s *userStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *log)
	return nil
}

// policyStore backs the access gate and policy service.
type policyStore struct {
	mu       sync.Mutex
	policies map[models.UserRole]*models.VisibilityPolicy
}

func newPolicyStore(policies ...*models.VisibilityPolicy) *policyStore {
	s := &policyStore{policies: make(map[models.UserRole]*models.VisibilityPolicy)}
	for _, p := range policies {
		s.policies[p.Role] = p
	}
	return s
}

func (s *policyStore) FindByRole(_ context.Context, role models.UserRole) (*models.VisibilityPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.policies[role]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *policyStore) List(_ context.Context) ([]models.VisibilityPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VisibilityPolicy
	for _, p := range s.policies {
		out = append(out, *p)
	}
	return out, nil
}

func (s *policyStore) Create(_ context.Context, policy *models.VisibilityPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.Role] = policy
	return nil
}

func (s *policyStore) Update(_ context.Context, policy *models.VisibilityPolicy) error {
	return s.Create(context.Background(), policy)
}

func (s *policyStore) Delete(_ context.Context, role models.UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[role]; !ok {
		return sql.ErrNoRows
	}
	delete(s.policies, role)
	return nil
}

// assignmentStore backs the assignment service with a single open assignment.
type assignmentStore struct {
	mu          sync.Mutex
	assignments map[string]*models.Assignment
	submissions map[string]*models.Submission
}

func newAssignmentStore(assignments ...*models.Assignment) *assignmentStore {
	s := &assignmentStore{assignments: make(map[string]*models.Assignment), submissions: make(map[string]*models.Submission)}
	for _, a := range assignments {
		s.assignments[a.ID] = a
	}
	return s
}

func (s *assignmentStore) List(_ context.Context, _ models.AssignmentFilter) ([]models.Assignment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Assignment
	for _, a := range s.assignments {
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *assignmentStore) FindByID(_ context.Context, id string) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assignments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentStore) Create(_ context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID] = a
	return nil
}

func (s *assignmentStore) Update(_ context.Context, a *models.Assignment) error {
	return s.Create(context.Background(), a)
}

func (s *assignmentStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assignments[id]; ok {
		a.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (s *assignmentStore) ListSubmissions(_ context.Context, assignmentID string) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Submission
	for _, sub := range s.submissions {
		if sub.AssignmentID == assignmentID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *assignmentStore) FindSubmission(_ context.Context, assignmentID, submissionID string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.submissions {
		if sub.AssignmentID == assignmentID && sub.ID == submissionID {
			return sub, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentStore) FindSubmissionByStudent(_ context.Context, assignmentID, studentID string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.submissions[assignmentID+"/"+studentID]; ok {
		return sub, nil
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentStore) CreateSubmission(_ context.Context, sub *models.Submission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sub.AssignmentID + "/" + sub.StudentID
	if _, ok := s.submissions[key]; ok {
		return false, nil
	}
	s.submissions[key] = sub
	return true, nil
}

func (s *assignmentStore) GradeSubmission(_ context.Context, assignmentID, submissionID string, marks float64, feedback, gradedBy string, gradedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.submissions {
		if sub.AssignmentID == assignmentID && sub.ID == submissionID {
			sub.MarksObtained = &marks
			sub.Feedback = &feedback
			sub.GradedBy = &gradedBy
			sub.GradedAt = &gradedAt
			sub.Status = models.SubmissionGraded
			return nil
		}
	}
	return sql.ErrNoRows
}

// discardBlobs satisfies the submission blob store without touching disk.
type discardBlobs struct{}

func (discardBlobs) SaveStream(filename string, _ io.Reader) (string, error) {
	return filename, nil
}

func (discardBlobs) Delete(string) error { return nil }

type routerFixture struct {
	router *gin.Engine
	users  *userStore
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newRouterFixture(t *testing.T, users *userStore, policies *policyStore, assignments *assignmentStore) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authSvc := service.NewAuthService(users, nil, nil, service.AuthConfig{
		AccessTokenSecret:  "router-test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "edu-records-test",
	})
	gate := service.NewAccessGate(policies)

	h := Handlers{
		Auth:       NewAuthHandler(authSvc),
		User:       NewUserHandler(service.NewUserService(users, gate, nil, nil)),
		Policy:     NewPolicyHandler(service.NewPolicyService(policies, users, nil, nil)),
		Assignment: NewAssignmentHandler(service.NewAssignmentService(assignments, discardBlobs{}, gate, nil, nil)),
		Metrics:    NewMetricsHandler(service.NewMetricsService()),
	}

	router := gin.New()
	RegisterPartialRoutes(router, h, authSvc, users)

	return &routerFixture{router: router, users: users}
}

// RegisterPartialRoutes mirrors RegisterRoutes for the handlers the fixture
// builds; nil handlers in the full table would panic at registration time.
func RegisterPartialRoutes(r *gin.Engine, h Handlers, authSvc *service.AuthService, users *userStore) {
	full := Handlers{
		Auth:       h.Auth,
		User:       h.User,
		Policy:     h.Policy,
		Subject:    h.Subject,
		Assignment: h.Assignment,
		Attendance: h.Attendance,
		Mark:       h.Mark,
		Report:     h.Report,
		Metrics:    h.Metrics,
	}
	if full.Subject == nil {
		full.Subject = &SubjectHandler{}
	}
	if full.Attendance == nil {
		full.Attendance = &AttendanceHandler{}
	}
	if full.Mark == nil {
		full.Mark = &MarkHandler{}
	}
	if full.Report == nil {
		full.Report = &ReportHandler{}
	}
	RegisterRoutes(r, full, authSvc, users)
}

func (f *routerFixture) login(t *testing.T, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.AccessToken)
	return envelope.Data.AccessToken
}

func (f *routerFixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	f.router.ServeHTTP(w, req)
	return w
}

func testUsers(t *testing.T) (*models.User, *models.User) {
	t.Helper()
	dept := "CS"
	roll := "CS-042"
	sem := 3
	admin := &models.User{
		ID:           "admin-1",
		Email:        "admin@campus.test",
		PasswordHash: hashPassword(t, "admin-pass"),
		FullName:     "Admin",
		Role:         models.RoleAdmin,
		Active:       true,
	}
	student := &models.User{
		ID:           "student-1",
		Email:        "student@campus.test",
		PasswordHash: hashPassword(t, "student-pass"),
		FullName:     "Student",
		Role:         models.RoleStudent,
		Department:   &dept,
		RollNumber:   &roll,
		Semester:     &sem,
		Active:       true,
	}
	return admin, student
}

func TestRouterRejectsMissingAndBadTokens(t *testing.T) {
	admin, student := testUsers(t)
	f := newRouterFixture(t, newUserStore(admin, student), newPolicyStore(), newAssignmentStore())

	w := f.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterLoginAndMe(t *testing.T) {
	admin, student := testUsers(t)
	f := newRouterFixture(t, newUserStore(admin, student), newPolicyStore(), newAssignmentStore())

	token := f.login(t, "student@campus.test", "student-pass")
	w := f.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "student@campus.test")
	assert.Contains(t, w.Body.String(), "CS")
}

func TestRouterRoleGateBlocksStudents(t *testing.T) {
	admin, student := testUsers(t)
	f := newRouterFixture(t, newUserStore(admin, student), newPolicyStore(), newAssignmentStore())

	token := f.login(t, "student@campus.test", "student-pass")

	w := f.do(http.MethodGet, "/api/v1/admin/policies", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	payload, _ := json.Marshal(models.CreateAssignmentRequest{
		Title: "hw", SubjectID: "sub1", Department: "CS", Semester: 3, MaxMarks: 10, DueDate: time.Now().Add(24 * time.Hour),
	})
	w = f.do(http.MethodPost, "/api/v1/faculty/assignments", token, payload)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouterPolicyUpsertEnablesStudentListing(t *testing.T) {
	admin, student := testUsers(t)
	policies := newPolicyStore()
	assignments := newAssignmentStore(&models.Assignment{
		ID: "a1", Title: "hw", SubjectID: "sub1", Department: "CS", Semester: 3,
		MaxMarks: 10, DueDate: time.Now().Add(24 * time.Hour), CreatedBy: "f1", Active: true,
	})
	f := newRouterFixture(t, newUserStore(admin, student), policies, assignments)

	studentToken := f.login(t, "student@campus.test", "student-pass")
	w := f.do(http.MethodGet, "/api/v1/assignments", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "no policy row means deny-all")

	adminToken := f.login(t, "admin@campus.test", "admin-pass")
	show := true
	payload, _ := json.Marshal(models.UpsertVisibilityPolicyRequest{Role: models.RoleStudent, ShowAssignments: &show})
	w = f.do(http.MethodPut, "/api/v1/admin/policies", adminToken, payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/api/v1/assignments", studentToken, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "\"a1\"")
}

func TestRouterStudentSubmitMultipart(t *testing.T) {
	admin, student := testUsers(t)
	policies := newPolicyStore(&models.VisibilityPolicy{ID: "p1", Role: models.RoleStudent, ShowAssignments: true})
	assignments := newAssignmentStore(&models.Assignment{
		ID: "a1", Title: "hw", SubjectID: "sub1", Department: "CS", Semester: 3,
		MaxMarks: 10, DueDate: time.Now().Add(24 * time.Hour), CreatedBy: "f1", Active: true,
	})
	f := newRouterFixture(t, newUserStore(admin, student), policies, assignments)

	token := f.login(t, "student@campus.test", "student-pass")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "answer.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("solution"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("comments", "done"))
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/student/assignments/a1/submit", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), string(models.SubmissionSubmitted))

	// second upload for the same assignment conflicts
	var buf2 bytes.Buffer
	mw2 := multipart.NewWriter(&buf2)
	part2, err := mw2.CreateFormFile("file", "answer-v2.pdf")
	require.NoError(t, err)
	_, err = part2.Write([]byte("solution v2"))
	require.NoError(t, err)
	require.NoError(t, mw2.Close())

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/student/assignments/a1/submit", &buf2)
	req2.Header.Set("Content-Type", mw2.FormDataContentType())
	req2.Header.Set("Authorization", "Bearer "+token)
	f.router.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusConflict, w2.Code, w2.Body.String())
}

func TestRouterAuditTrailOnAdminWrites(t *testing.T) {
	admin, student := testUsers(t)
	users := newUserStore(admin, student)
	f := newRouterFixture(t, users, newPolicyStore(), newAssignmentStore())

	adminToken := f.login(t, "admin@campus.test", "admin-pass")
	w := f.do(http.MethodDelete, "/api/v1/admin/users/student-1", adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	users.mu.Lock()
	defer users.mu.Unlock()
	var actions []string
	for _, a := range users.audits {
		actions = append(actions, a.Action)
	}
	assert.Contains(t, strings.Join(actions, ","), models.AuditActionUserDelete)
}
