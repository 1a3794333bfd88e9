package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/holocron/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func bindRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/register", func(ctx *gin.Context) {
		var req handlers.RegisterRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})
	return r
}

func postBind(t *testing.T, body string) (*httptest.ResponseRecorder, bindErrorResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	bindRouter().ServeHTTP(w, req)

	var resp bindErrorResponse
	if w.Code != http.StatusCreated {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
		}
	}
	return w, resp
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	w, resp := postBind(t, `{"email":"not-an-email","role":"sith"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	if resp.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}

	wantRules := map[string]string{
		"email":    "email",
		"password": "required",
		"role":     "oneof",
	}

	got := make(map[string]string, len(resp.Error.Details.Fields))
	for _, f := range resp.Error.Details.Fields {
		got[f.Field] = f.Rule
	}

	for field, rule := range wantRules {
		if got[field] != rule {
			t.Fatalf("field %q: got rule %q, want %q (all=%v)", field, got[field], rule, got)
		}
	}
}

func TestBindJSON_MalformedJSON(t *testing.T) {
	w, resp := postBind(t, `{"email":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
	if resp.Error.Details.JSON != "invalid_json_syntax" {
		t.Fatalf("details.json = %q", resp.Error.Details.JSON)
	}
}

func TestBindJSON_TypeMismatch(t *testing.T) {
	w, resp := postBind(t, `{"email":42,"password":"x"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
	if resp.Error.Details.JSON != "invalid_json_type" {
		t.Fatalf("details.json = %q", resp.Error.Details.JSON)
	}
}

func TestBindJSON_Valid(t *testing.T) {
	w, _ := postBind(t, `{"email":"a@b.com","password":"secret1"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201, body=%s", w.Code, w.Body.String())
	}
}
