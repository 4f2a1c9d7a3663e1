package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leelachesszero/sprt-server/internal/coordinator"
	"github.com/leelachesszero/sprt-server/internal/models"
	"github.com/leelachesszero/sprt-server/internal/sprt"
)

// NewAdminRouter builds the administrator HTTP API. confidence is the level
// of the Elo intervals reported for tests.
func NewAdminRouter(pool *coordinator.Pool, confidence float64) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/engines", RegisterEngine(pool))
	v1.POST("/tests", CreateTest(pool))
	v1.GET("/tests", ListTests(pool, confidence))
	v1.GET("/tests/:id", GetTest(pool, confidence))
	v1.POST("/tests/:id/await", Transition(pool.Await))
	v1.POST("/tests/:id/approve", Transition(pool.Approve))
	v1.POST("/tests/:id/resume", Transition(pool.Resume))
	v1.DELETE("/tests/:id", Transition(pool.Delete))
	return r
}

type engineRequest struct {
	Name   string `json:"name" binding:"required"`
	Source string `json:"source"`
	Sha    string `json:"sha" binding:"required"`
	Bench  int64  `json:"bench"`
}

// EloInterval is the Elo estimate of a test with its confidence interval.
type EloInterval struct {
	Lower float64 `json:"lower"`
	Elo   float64 `json:"elo"`
	Upper float64 `json:"upper"`
}

// TestView is a test as shown to administrators.
type TestView struct {
	models.Test
	Elo EloInterval `json:"elo"`
}

func view(t models.Test, confidence float64) TestView {
	lo, elo, hi := sprt.Elo(t.Results(t.Paired), confidence)
	return TestView{Test: t, Elo: EloInterval{Lower: lo, Elo: elo, Upper: hi}}
}

// abort writes err with the status code matching its kind.
func abort(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch coordinator.KindOf(err) {
	case coordinator.KindValidation:
		code = http.StatusBadRequest
	case coordinator.KindNotFound:
		code = http.StatusNotFound
	case coordinator.KindConflict:
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		slog.Error("admin request failed", "path", c.FullPath(), "error", err)
		c.JSON(code, gin.H{"error": "internal error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error(), "reason": coordinator.ReasonOf(err)})
}

func testID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test id"})
		return 0, false
	}
	return uint(id), true
}

func RegisterEngine(pool *coordinator.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req engineRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		e, err := pool.RegisterEngine(c.Request.Context(), models.Engine{
			Name: req.Name, Source: req.Source, Sha: req.Sha, Bench: req.Bench,
		})
		if err != nil {
			abort(c, err)
			return
		}
		slog.Info("engine registered", "engine", e.ID, "name", e.Name, "sha", e.Sha)
		c.JSON(http.StatusCreated, e)
	}
}

func CreateTest(pool *coordinator.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var spec coordinator.TestSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := pool.CreateTest(c.Request.Context(), spec)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func ListTests(pool *coordinator.Pool, confidence float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		tests := pool.Tests()
		out := make([]TestView, 0, len(tests))
		for _, t := range tests {
			if s := c.Query("status"); s != "" && string(t.Status) != s {
				continue
			}
			out = append(out, view(t, confidence))
		}
		c.JSON(http.StatusOK, out)
	}
}

func GetTest(pool *coordinator.Pool, confidence float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := testID(c)
		if !ok {
			return
		}
		t, err := pool.Test(id)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, view(t, confidence))
	}
}

// Transition applies an administrator action to the test named in the path.
func Transition(action func(ctx context.Context, id uint) (models.Test, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := testID(c)
		if !ok {
			return
		}
		t, err := action(c.Request.Context(), id)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
