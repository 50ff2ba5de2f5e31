package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail         *models.User
	usersByEmail        map[string]*models.User
	userByID            *models.User
	userByRoll          *models.User
	created             []*models.User
	findByEmailErr      error
	findByIDErr         error
	refreshTokens       map[string]*models.RefreshToken
	refreshTokenErr     error
	createRefreshErr    error
	revokeRefreshErr    error
	revokeUserTokensErr error
	updatePasswordErr   error
	auditLogs           []*models.AuditLog
	lastLoginUpdated    bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	// When the map is set, match the email byte for byte the way the
	// case-sensitive email column does.
	if m.usersByEmail != nil {
		if user, ok := m.usersByEmail[email]; ok {
			return user, nil
		}
		return nil, sql.ErrNoRows
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail != nil {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByRollNumber(ctx context.Context, rollNumber string) (*models.User, error) {
	if m.userByRoll == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByRoll, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.created = append(m.created, user)
	if m.usersByEmail != nil {
		m.usersByEmail[user.Email] = user
	}
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return m.revokeUserTokensErr
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if m.refreshTokenErr != nil {
		return nil, m.refreshTokenErr
	}
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if m.revokeRefreshErr != nil {
		return m.revokeRefreshErr
	}
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: time.Hour * 24,
	})
}

func TestAuthServiceSignupStudent(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newAuthService(repo)

	info, err := svc.Signup(context.Background(), models.SignupRequest{
		Role:       models.RoleStudent,
		FullName:   "Asha Verma",
		Email:      "asha@example.com",
		Password:   "password",
		RollNumber: "CS-042",
		Semester:   5,
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, models.RoleStudent, info.Role)
	require.NotNil(t, info.RollNumber)
	assert.Equal(t, "CS-042", *info.RollNumber)
	assert.NotEqual(t, "password", repo.created[0].PasswordHash)
}

func TestAuthServiceSignupStudentMissingRollNumber(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Role:     models.RoleStudent,
		FullName: "Asha Verma",
		Email:    "asha@example.com",
		Password: "password",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appStatus(t, err))
}

func TestAuthServiceSignupFacultyRequiresDepartment(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Role:     models.RoleFaculty,
		FullName: "Dr. Rao",
		Email:    "rao@example.com",
		Password: "password",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appStatus(t, err))
}

func TestAuthServiceSignupDuplicateEmail(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "taken@example.com"}}
	svc := newAuthService(repo)

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Role:       models.RoleAdmin,
		FullName:   "Admin",
		Email:      "taken@example.com",
		Password:   "password",
		Department: "CS",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceSignupThenLoginWithMixedCaseEmail(t *testing.T) {
	repo := &mockAuthRepo{usersByEmail: map[string]*models.User{}}
	svc := newAuthService(repo)

	info, err := svc.Signup(context.Background(), models.SignupRequest{
		Role:       models.RoleFaculty,
		FullName:   "Alice Fernandes",
		Email:      "Alice@Example.com",
		Password:   "password",
		Department: "CS",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", info.Email)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "Alice@Example.com", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
}

func TestAuthServiceSignupDuplicateEmailDifferentCase(t *testing.T) {
	repo := &mockAuthRepo{usersByEmail: map[string]*models.User{}}
	svc := newAuthService(repo)

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Role:       models.RoleFaculty,
		FullName:   "Bob Pillai",
		Email:      "bob@example.com",
		Password:   "password",
		Department: "CS",
	})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), models.SignupRequest{
		Role:       models.RoleFaculty,
		FullName:   "Bob Pillai",
		Email:      "Bob@Example.com",
		Password:   "password",
		Department: "CS",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.created, 1)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleAdmin}}
	svc := newAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.refreshTokens)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: false}}
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: true}}
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: "hash", Active: true, Role: models.RoleAdmin}
	repo.userByEmail = user
	repo.userByID = user
	token := &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens[token.Token] = token

	svc := newAuthService(repo)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"stale": {ID: "rt1", UserID: "u1", Token: "stale", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	svc := newAuthService(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, appStatus(t, err))
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("old"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}
	svc := newAuthService(repo)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, string(oldHash), repo.userByEmail.PasswordHash)
}

func TestValidateTokenCarriesScopeClaims(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newAuthService(repo)
	dept := "CS"
	sem := 5
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleStudent, Department: &dept, Semester: &sem}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "CS", claims.Department)
	assert.Equal(t, 5, claims.Semester)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})
	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, appStatus(t, err))
}
