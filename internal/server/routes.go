package server

import (
	"net/http"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/domain"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type snapshotResponse struct {
	*sml.MeterSnapshot
	Direction string `json:"power_direction"`
	Cycles    uint64 `json:"cycles"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/snapshot", s.SnapshotHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// SnapshotHandler returns the last decoded snapshot with its power direction.
func (s *Server) SnapshotHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLastSnapshotRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetLastSnapshotResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if response.Snapshot == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no snapshot yet")
	}
	body := snapshotResponse{
		MeterSnapshot: response.Snapshot,
		Direction:     response.Direction.String(),
		Cycles:        response.Cycles,
	}
	if response.HasResponseError() {
		body.Error = response.GetResponseError().Error()
	}
	return c.JSON(http.StatusOK, body)
}
