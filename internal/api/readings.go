package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func (s *Server) readingsHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Storage is disabled."))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}

	if c.Query("from") != "" || c.Query("to") != "" {
		p := newParams(c, s.forecaster.Location())
		from := p.datetime("from", nil)
		to := p.datetime("to", nil)
		p.window(from, to)
		if !p.ok() {
			badRequest(c, p.errs)
			return
		}

		readings, err := s.store.GetReadingsByRange(*from, *to)
		if err != nil {
			s.queryFailed(c, err)
			return
		}
		c.JSON(http.StatusOK, readings)
		return
	}

	readings, err := s.store.GetReadingsWithLimit(limit)
	if err != nil {
		s.queryFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) latestReadingHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Storage is disabled."))
		return
	}

	reading, err := s.store.GetLatestReading()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, errorBody("No reading has been collected yet."))
		return
	}
	if err != nil {
		s.queryFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, reading)
}
