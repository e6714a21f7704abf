// Package api serves the status and job endpoints: device discovery,
// pool inspection, and dispatch workloads submitted as jobs.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/sluice/internal/accel"
	"github.com/samcharles93/sluice/internal/dispatch"
	"github.com/samcharles93/sluice/internal/streams"
)

type Server struct {
	drv   accel.Driver
	store *JobStore
	clock func() time.Time
}

func NewServer(drv accel.Driver, store *JobStore) *Server {
	if store == nil {
		store = NewJobStore()
	}
	return &Server{
		drv:   drv,
		store: store,
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealthz)
	e.GET("/v1/devices", s.handleDevices)
	e.GET("/v1/pools", s.handlePools)
	e.GET("/v1/pools/:device", s.handlePool)
	e.POST("/v1/jobs", s.handleCreateJob)
	e.GET("/v1/jobs", s.handleListJobs)
	e.GET("/v1/jobs/:id", s.handleGetJob)
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDevices(c *echo.Context) error {
	count, err := s.drv.DeviceCount()
	if err != nil {
		return writeServerError(c, err.Error())
	}
	devices := make([]accel.DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		info, err := s.drv.DeviceInfo(i)
		if err != nil {
			return writeServerError(c, err.Error())
		}
		devices = append(devices, info)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"driver": s.drv.Name(),
		"data":   devices,
	})
}

func (s *Server) handlePools(c *echo.Context) error {
	out := PoolList{Object: "list", Data: []streams.Stats{}}
	for _, device := range streams.Devices() {
		if pool, ok := streams.Lookup(device); ok {
			out.Data = append(out.Data, pool.Stats())
		}
	}
	return c.JSON(http.StatusOK, out)
}

// handlePool reports one pool. It never creates a pool; a device that has
// not been first-touched is a 404.
func (s *Server) handlePool(c *echo.Context) error {
	device, err := strconv.Atoi(c.Param("device"))
	if err != nil {
		return writeBadRequest(c, "device must be an integer")
	}
	pool, ok := streams.Lookup(device)
	if !ok {
		return writeNotFound(c, "no pool for device "+c.Param("device"))
	}
	return c.JSON(http.StatusOK, pool.Stats())
}

func (s *Server) handleCreateJob(c *echo.Context) error {
	req, err := decodeJSON[JobRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Device < 0 {
		return writeBadRequest(c, "device must be non-negative")
	}
	req.applyDefaults()

	pool, err := streams.For(req.Device)
	if err != nil {
		var setupErr *streams.DeviceSetupError
		if errors.As(err, &setupErr) {
			return writeBadRequest(c, err.Error())
		}
		return writeServerError(c, err.Error())
	}

	res, err := dispatch.New(pool).Run(c.Request().Context(), req.plan())
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	job := newJob(newJobID(), req, res, s.clock())
	s.store.Put(job)
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleListJobs(c *echo.Context) error {
	return c.JSON(http.StatusOK, JobList{Object: "list", Data: s.store.List()})
}

func (s *Server) handleGetJob(c *echo.Context) error {
	id := c.Param("id")
	job, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "no job "+id)
	}
	return c.JSON(http.StatusOK, job)
}
