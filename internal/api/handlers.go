package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"token_sync/internal/domain"
	"token_sync/internal/engine"
	"token_sync/internal/query"
)

// Handler serves the REST routes.
type Handler struct {
	engine Engine
	svc    *query.Service
	stream *Stream
	now    func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps engine and domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownCategory), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Health reports the engine state. It answers 503 until the bulk load.
func (h *Handler) Health(c *gin.Context) {
	state := h.engine.State()
	body := gin.H{
		"status": "ok",
		"state":  state.String(),
		"seq":    h.engine.NextSeq() - 1,
		"counts": h.engine.Counts(),
	}
	if h.stream != nil {
		body["streamClients"] = h.stream.Clients()
	}
	if state != engine.StateRunning {
		body["status"] = "loading"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// ListTokens returns the view for the stored configuration, with query
// parameters overriding it for this call only.
func (h *Handler) ListTokens(c *gin.Context) {
	p, err := h.parseParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.svc.Query(p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) parseParams(c *gin.Context) (query.Params, error) {
	var p query.Params

	if v := c.Query("category"); v != "" {
		cat, err := domain.ParseCategory(v)
		if err != nil {
			return p, err
		}
		p.Category = cat
	}

	field, dir := c.Query("sort"), c.Query("dir")
	if field != "" || dir != "" {
		s := h.svc.Sort()
		if field != "" {
			s = domain.SortConfig{Field: domain.Field(field), Direction: domain.SortDesc}
		}
		if dir != "" {
			s.Direction = domain.SortDirection(dir)
		}
		if err := s.Validate(); err != nil {
			return p, badRequest("%v", err)
		}
		p.Sort = &s
	}

	f := h.svc.Filter()
	override := false
	for key, dst := range map[string]*float64{
		"minMarketCap": &f.MinMarketCap,
		"maxMarketCap": &f.MaxMarketCap,
		"minHolders":   &f.MinHolders,
		"minVolume":    &f.MinVolume,
	} {
		raw, ok := c.GetQuery(key)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, badRequest("%s: %v", key, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return p, badRequest("%s: %v", key, domain.ErrInvalidValue)
		}
		*dst = v
		override = true
	}
	if raw, ok := c.GetQuery("hideUnverified"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return p, badRequest("hideUnverified: %v", err)
		}
		f.HideUnverified = v
		override = true
	}
	if override {
		p.Filter = &f
	}
	return p, nil
}

type tokenResponse struct {
	Category domain.Category                   `json:"category"`
	Token    domain.Token                      `json:"token"`
	Flashes  map[domain.Field]domain.Direction `json:"flashes"`
	Display  domain.Display                    `json:"display"`
	Age      string                            `json:"age"`
}

// GetToken returns one token with its live flashes.
func (h *Handler) GetToken(c *gin.Context) {
	cat, tok, flashes, err := h.engine.Token(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if flashes == nil {
		flashes = map[domain.Field]domain.Direction{}
	}
	c.JSON(http.StatusOK, tokenResponse{
		Category: cat,
		Token:    tok,
		Flashes:  flashes,
		Display:  tok.Display(),
		Age:      tok.Age(h.now()),
	})
}

// ListFlashes returns every live flash.
func (h *Handler) ListFlashes(c *gin.Context) {
	flashes := h.engine.Flashes()
	if flashes == nil {
		flashes = []domain.Flash{}
	}
	c.JSON(http.StatusOK, gin.H{"flashes": flashes})
}

func (h *Handler) GetSort(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Sort())
}

func (h *Handler) PutSort(c *gin.Context) {
	var s domain.SortConfig
	if err := c.ShouldBindJSON(&s); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	if err := h.svc.SetSort(s); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	c.JSON(http.StatusOK, h.svc.Sort())
}

type toggleRequest struct {
	Field domain.Field `json:"field" binding:"required"`
}

func (h *Handler) ToggleSort(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	s, err := h.svc.ToggleSort(req.Field)
	if err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) GetFilter(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Filter())
}

func (h *Handler) PatchFilter(c *gin.Context) {
	var p domain.FilterPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	c.JSON(http.StatusOK, h.svc.SetFilter(p))
}

func (h *Handler) ResetFilter(c *gin.Context) {
	h.svc.ResetFilter()
	c.JSON(http.StatusOK, h.svc.Filter())
}

type categoryRequest struct {
	Category domain.Category `json:"category" binding:"required"`
}

func (h *Handler) GetCategory(c *gin.Context) {
	c.JSON(http.StatusOK, categoryRequest{Category: h.svc.Category()})
}

func (h *Handler) PutCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	if err := h.svc.SetCategory(req.Category); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, categoryRequest{Category: h.svc.Category()})
}
