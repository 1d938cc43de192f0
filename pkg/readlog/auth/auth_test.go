package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/database"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testTokens = NewTokens("test-secret", time.Hour)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenMemory(t.Name())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := zap.NewNop()
	handler := NewHandler(db, testTokens, log)
	handler.RegisterRoutes(r.Group("/auth"), AuthMiddleware(testTokens, log), ActorMiddleware(db, log))
	return r
}

func doJSON(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func register(t *testing.T, r http.Handler, email, nickname string) AuthResponse {
	resp := doJSON(r, "POST", "/auth/register", "", RegisterRequest{Email: email, Password: "password123", Nickname: nickname})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var out AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &out)
	return out
}

func TestPasswordHashing(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == password {
		t.Error("Hash should not equal plain password")
	}
	if !CheckPassword(password, hash) {
		t.Error("CheckPassword should return true for correct password")
	}
	if CheckPassword("wrongpassword", hash) {
		t.Error("CheckPassword should return false for incorrect password")
	}
}

func TestJWTToken(t *testing.T) {
	token, err := testTokens.Generate(1, "test@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := testTokens.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != 1 {
		t.Errorf("Expected UserID 1, got %d", claims.UserID)
	}
	if claims.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", claims.Email)
	}
}

func TestInvalidToken(t *testing.T) {
	if _, err := testTokens.Validate("invalid-token"); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}

	other := NewTokens("other-secret", time.Hour)
	token, _ := other.Generate(1, "test@example.com")
	if _, err := testTokens.Validate(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	expired := NewTokens("test-secret", -time.Minute)
	token, _ := expired.Generate(1, "test@example.com")
	if _, err := testTokens.Validate(token); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestRegisterAndMe(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	out := register(t, router, "Reader@Example.com", "  Reader  ")
	if out.User.Email != "reader@example.com" {
		t.Errorf("Expected normalized email, got %s", out.User.Email)
	}
	if out.User.Nickname != "Reader" {
		t.Errorf("Expected trimmed nickname, got %q", out.User.Nickname)
	}

	resp := doJSON(router, "GET", "/auth/me", out.Token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var me UserResponse
	json.Unmarshal(resp.Body.Bytes(), &me)
	if me.ID != out.User.ID {
		t.Errorf("Expected user %d, got %d", out.User.ID, me.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	register(t, router, "reader@example.com", "one")
	resp := doJSON(router, "POST", "/auth/register", "", RegisterRequest{Email: "reader@example.com", Password: "password123", Nickname: "two"})
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	cases := []RegisterRequest{
		{Email: "not-an-email", Password: "password123", Nickname: "x"},
		{Email: "a@example.com", Password: "short", Nickname: "x"},
		{Email: "a@example.com", Password: "password123", Nickname: "   "},
	}
	for _, c := range cases {
		resp := doJSON(router, "POST", "/auth/register", "", c)
		if resp.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %+v, got %d", c, resp.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	register(t, router, "reader@example.com", "reader")

	resp := doJSON(router, "POST", "/auth/login", "", LoginRequest{Email: "reader@example.com", Password: "password123"})
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "POST", "/auth/login", "", LoginRequest{Email: "reader@example.com", Password: "wrong-password"})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", "/auth/login", "", LoginRequest{Email: "nobody@example.com", Password: "password123"})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestMeRequiresAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := doJSON(router, "GET", "/auth/me", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}

	resp = doJSON(router, "GET", "/auth/me", "garbage", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestDeletedAccountTokenRejected(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	out := register(t, router, "reader@example.com", "reader")

	db.Delete(&models.User{}, out.User.ID)

	resp := doJSON(router, "GET", "/auth/me", out.Token, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestChangePassword(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	out := register(t, router, "reader@example.com", "reader")

	resp := doJSON(router, "PUT", "/auth/password", out.Token, ChangePasswordRequest{CurrentPassword: "wrong-password", NewPassword: "newpassword1"})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}

	resp = doJSON(router, "PUT", "/auth/password", out.Token, ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "newpassword1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "POST", "/auth/login", "", LoginRequest{Email: "reader@example.com", Password: "newpassword1"})
	if resp.Code != http.StatusOK {
		t.Errorf("Expected login with new password to succeed, got %d", resp.Code)
	}
}

func TestChangeEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	out := register(t, router, "reader@example.com", "reader")
	register(t, router, "taken@example.com", "other")

	resp := doJSON(router, "PUT", "/auth/email", out.Token, ChangeEmailRequest{Password: "password123", Email: "taken@example.com"})
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}

	resp = doJSON(router, "PUT", "/auth/email", out.Token, ChangeEmailRequest{Password: "password123", Email: "new@example.com"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var user UserResponse
	json.Unmarshal(resp.Body.Bytes(), &user)
	if user.Email != "new@example.com" {
		t.Errorf("Expected new email, got %s", user.Email)
	}
}
