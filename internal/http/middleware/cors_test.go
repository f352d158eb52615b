package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func preflight(r *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/sessions/s1/graph", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsAnyOriginByDefault(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	origins := []string{
		"http://localhost:5173",
		"https://mindmesh.example",
	}

	for _, origin := range origins {
		origin := origin
		t.Run(origin, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(CORS(ParseOrigins("*")))
			r.OPTIONS("/api/sessions/:session_id/graph", func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			rec := preflight(r, origin)
			if rec.Code != http.StatusNoContent {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNoContent)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Fatalf("unexpected allow-origin header: got=%q want=%q", got, "*")
			}
		})
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORS(ParseOrigins(" http://localhost:3000 , http://127.0.0.1:3000")))
	r.OPTIONS("/api/sessions/:session_id/graph", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	rec := preflight(r, "http://127.0.0.1:3000")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:3000" {
		t.Fatalf("allowed origin not echoed: got=%q", got)
	}
	rec = preflight(r, "http://evil.example")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status for foreign origin: got=%d want=%d", rec.Code, http.StatusForbidden)
	}
}

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	if got := ParseOrigins(" , "); len(got) != 0 {
		t.Fatalf("blank entries should be dropped: %v", got)
	}
	if !AllowsAnyOrigin(nil) || !AllowsAnyOrigin([]string{"http://a", "*"}) {
		t.Fatalf("wildcard not detected")
	}
	if AllowsAnyOrigin([]string{"http://a"}) {
		t.Fatalf("explicit list should not allow any origin")
	}
}
