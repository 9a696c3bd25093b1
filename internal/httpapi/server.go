// Package httpapi exposes the respondent and operator HTTP routes.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wedding-ops/internal/auth"
	"wedding-ops/internal/checkin"
	"wedding-ops/internal/groups"
	"wedding-ops/internal/handler"
	"wedding-ops/internal/materialize"
	"wedding-ops/internal/models"
	"wedding-ops/internal/seating"
	"wedding-ops/internal/storage"
)

// Deps are the services behind the routes
type Deps struct {
	Records      *storage.Records
	Issuer       *auth.Issuer
	RSVPs        *handler.RSVPHandler
	Materializer *materialize.Materializer
	Seating      *seating.Engine
	CheckIn      *checkin.Service
	Limiter      *IPRateLimiter
	Logger       zerolog.Logger
}

// Options configure the router
type Options struct {
	CORSOrigins []string
}

type server struct {
	Deps
	log zerolog.Logger
}

// NewRouter builds the gin engine with every route
func NewRouter(deps Deps, opts Options) *gin.Engine {
	s := &server{Deps: deps, log: deps.Logger.With().Str("component", "HTTP").Logger()}

	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery(), s.requestLogger())
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(AuthJWT(s.Issuer))
	{
		rsvps := api.Group("/rsvps")
		if s.Limiter != nil {
			rsvps.POST("", RateLimitByIP(s.Limiter), s.submitRSVP)
		} else {
			rsvps.POST("", s.submitRSVP)
		}
		rsvps.GET("/me", s.myRSVP)

		ops := api.Group("/ops")
		ops.Use(RequireOperator())
		{
			ops.GET("/groups", s.listGroups)
			ops.GET("/groups/:key", s.getGroup)
			ops.POST("/groups/:key/assign", s.assignGroup)
			ops.POST("/groups/:key/toggle", s.groupAction(s.CheckIn.ToggleGroup))
			ops.POST("/groups/:key/checkin", s.groupAction(s.CheckIn.CheckInGroup))
			ops.DELETE("/groups/:key/checkin", s.groupAction(s.CheckIn.UncheckGroup))

			ops.GET("/rsvps/:id/guests", s.rsvpGuests)
			ops.POST("/rsvps/:id/materialize", s.materializeOne)
			ops.POST("/import", s.importAll)

			ops.DELETE("/guests/:id", s.deleteGuest)
			ops.POST("/guests/:id/checkin", s.checkIn)
			ops.DELETE("/guests/:id/checkin", s.uncheck)
			ops.PUT("/guests/:id/disposition", s.setDisposition)

			ops.GET("/seating", s.layout)
			ops.POST("/seating/layout", s.loadLayout)
			ops.POST("/seating/unassign", s.unassign)
			ops.PUT("/zones/:id", s.saveZone)
			ops.DELETE("/zones/:id", s.deleteZone)
			ops.PUT("/tables/:id", s.saveTable)
			ops.POST("/tables/:id/assign", s.assign)
			ops.DELETE("/tables/:id", s.deleteTable)
		}
	}
	return r
}

func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := s.log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.log.Error().Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

// --- respondent ---

func (s *server) submitRSVP(c *gin.Context) {
	var sub handler.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.RSVPs.Submit(c.Request.Context(), principalFrom(c), sub)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) myRSVP(c *gin.Context) {
	rsvp, err := s.RSVPs.Mine(c.Request.Context(), principalFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rsvp)
}

// --- groups and materialization ---

func (s *server) snapshot(c *gin.Context) ([]models.RSVPRecord, []models.GuestRecord, bool) {
	ctx := c.Request.Context()
	rsvps, err := s.Records.RSVPs(ctx)
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}
	guests, err := s.Records.Guests(ctx)
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}
	return rsvps, guests, true
}

func (s *server) findGroup(c *gin.Context) (models.GuestGroup, bool) {
	rsvps, guests, ok := s.snapshot(c)
	if !ok {
		return models.GuestGroup{}, false
	}
	key := c.Param("key")
	group, found := groups.Find(key, rsvps, guests)
	if !found {
		writeError(c, fmt.Errorf("group %s: %w", key, models.ErrNotFound))
		return models.GuestGroup{}, false
	}
	return group, true
}

func (s *server) listGroups(c *gin.Context) {
	rsvps, guests, ok := s.snapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, groups.Build(rsvps, guests))
}

func (s *server) getGroup(c *gin.Context) {
	if group, ok := s.findGroup(c); ok {
		c.JSON(http.StatusOK, group)
	}
}

func (s *server) rsvpGuests(c *gin.Context) {
	ctx := c.Request.Context()
	rsvp, err := s.Records.RSVP(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	guests, err := s.Records.Guests(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	linked := groups.GuestsForRSVP(rsvp, guests)
	if linked == nil {
		linked = []models.GuestRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"rsvpId": rsvp.ID, "guests": linked})
}

func (s *server) materializeOne(c *gin.Context) {
	res, err := s.Materializer.MaterializeByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) importAll(c *gin.Context) {
	summary, err := s.Materializer.MaterializeAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *server) deleteGuest(c *gin.Context) {
	if err := s.Materializer.DeleteGuest(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- check-in ---

func (s *server) checkIn(c *gin.Context) {
	res, err := s.CheckIn.CheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) uncheck(c *gin.Context) {
	res, err := s.CheckIn.Uncheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type dispositionRequest struct {
	IsComing string `json:"isComing"`
}

func (s *server) setDisposition(c *gin.Context) {
	var req dispositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := models.ParseDisposition(req.IsComing)
	if err != nil {
		writeError(c, err)
		return
	}
	guest, err := s.CheckIn.SetDisposition(c.Request.Context(), c.Param("id"), d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, guest)
}

type groupOp func(ctx context.Context, key string) (checkin.GroupResult, error)

func (s *server) groupAction(op groupOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := op(c.Request.Context(), c.Param("key"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// --- seating ---

type assignRequest struct {
	GuestIDs []string `json:"guestIds" binding:"required,min=1"`
}

type assignGroupRequest struct {
	TableID string `json:"tableId" binding:"required"`
}

func (s *server) layout(c *gin.Context) {
	layout, err := s.Seating.Layout(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, layout)
}

func (s *server) assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Seating.Assign(c.Request.Context(), req.GuestIDs, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":       res,
		"successCount": res.SuccessCount(),
		"failCount":    res.FailCount(),
		"tableFull":    res.TableFullCount(),
	})
}

func (s *server) assignGroup(c *gin.Context) {
	var req assignGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, ok := s.findGroup(c)
	if !ok {
		return
	}
	res, err := s.Seating.AssignGroup(c.Request.Context(), group, req.TableID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":       res,
		"successCount": res.SuccessCount(),
		"failCount":    res.FailCount(),
		"tableFull":    res.TableFullCount(),
	})
}

func (s *server) unassign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Seating.Unassign(c.Request.Context(), req.GuestIDs))
}

func (s *server) saveZone(c *gin.Context) {
	var zone models.Zone
	if err := c.ShouldBindJSON(&zone); err != nil {
		badRequest(c, err)
		return
	}
	zone.ID = c.Param("id")
	if err := s.Seating.SaveZone(c.Request.Context(), zone); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, zone)
}

func (s *server) saveTable(c *gin.Context) {
	var table models.TableData
	if err := c.ShouldBindJSON(&table); err != nil {
		badRequest(c, err)
		return
	}
	table.ID = c.Param("id")
	if err := s.Seating.SaveTable(c.Request.Context(), table); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *server) deleteZone(c *gin.Context) {
	res, err := s.Seating.DeleteZone(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) deleteTable(c *gin.Context) {
	res, err := s.Seating.DeleteTable(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) loadLayout(c *gin.Context) {
	layout, err := seating.ParseLayout(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Seating.LoadLayout(c.Request.Context(), layout)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
