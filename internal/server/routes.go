package server

import (
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/svetly-todorov/rasctl/internal/cper"
	"github.com/svetly-todorov/rasctl/internal/ghes"
	"github.com/svetly-todorov/rasctl/internal/mhd"
	"github.com/svetly-todorov/rasctl/internal/testbench"
)

type memoryInjectRequest struct {
	Source  int    `json:"source"`
	Address uint64 `json:"address"`
}

type deviceInjectRequest struct {
	Device    string   `json:"device"`
	HeaderLog []uint32 `json:"header_log,omitempty"`
}

type mediaInjectRequest struct {
	Device          string `json:"device"`
	DPA             uint64 `json:"dpa"`
	Descriptor      uint8  `json:"descriptor"`
	Type            uint8  `json:"type"`
	TransactionType uint8  `json:"transaction_type"`
	Channel         uint8  `json:"channel"`
	Rank            uint8  `json:"rank"`
}

type claimRequest struct {
	Start  uint64 `json:"start"`
	Count  uint64 `json:"count"`
	Policy string `json:"policy"`
}

// RegisterRoutes binds the control-plane API.
func (s *Server) RegisterRoutes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": "0.0.1",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   s.bench.GHES.BaseAddress() != 0,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
		})
	})

	r.GET("/region", s.handleRegion)
	r.GET("/region/slots/:source", s.handleSlot)
	r.POST("/region/ack/:source", s.handleAck)

	r.POST("/inject/memory", s.handleInjectMemory)
	r.POST("/inject/aer", s.handleInjectAER)
	r.POST("/inject/cxl/protocol", s.handleInjectCXLProtocol)
	r.POST("/inject/cxl/media", s.handleInjectCXLMedia)

	r.GET("/devices", s.handleDevices)

	if s.bench.RASF != nil {
		r.GET("/scrub", s.handleScrub)
	}
	if s.bench.MHD != nil {
		r.GET("/mhd", s.handleMHD)
		r.POST("/mhd/claim", s.handleMHDClaim)
		r.POST("/mhd/release", s.handleMHDRelease)
	}
}

func (s *Server) handleRegion(c *gin.Context) {
	acks := make([]uint64, ghes.SourceCount)
	for i := range acks {
		v, err := s.bench.GHES.ReadAck(i)
		if err != nil {
			injectError(c, err)
			return
		}
		acks[i] = v
	}
	c.JSON(http.StatusOK, gin.H{
		"base":    s.bench.GHES.BaseAddress(),
		"sources": ghes.SourceCount,
		"acks":    acks,
	})
}

func (s *Server) handleSlot(c *gin.Context) {
	sourceID, ok := sourceParam(c)
	if !ok {
		return
	}
	slot, err := s.bench.GHES.ReadSlot(sourceID)
	if err != nil {
		injectError(c, err)
		return
	}
	sb, err := cper.DecodeStatusBlock(slot)
	if err != nil {
		injectError(c, err)
		return
	}
	resp := gin.H{
		"source":       sourceID,
		"block_status": sb.BlockStatus,
		"data_length":  sb.DataLength,
		"severity":     sb.Severity.String(),
		"raw":          hex.EncodeToString(slot[:cper.StatusBlockSize+sb.DataLength]),
	}
	if sb.BlockStatus != 0 {
		if de, err := cper.DecodeDataEntry(slot[cper.StatusBlockSize:]); err == nil {
			resp["section_type"] = de.SectionType.String()
			resp["section_length"] = de.ErrorDataLength
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAck(c *gin.Context) {
	sourceID, ok := sourceParam(c)
	if !ok {
		return
	}
	if err := s.bench.Acknowledge(sourceID); err != nil {
		injectError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "source": sourceID})
}

func (s *Server) handleInjectMemory(c *gin.Context) {
	var req memoryInjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.bench.InjectMemory(req.Source, req.Address); err != nil {
		injectError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded", "source": req.Source})
}

func (s *Server) handleInjectAER(c *gin.Context) {
	var req deviceInjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.bench.InjectAER(req.Device); err != nil {
		injectError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded", "device": req.Device})
}

func (s *Server) handleInjectCXLProtocol(c *gin.Context) {
	var req deviceInjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.bench.InjectCXLProtocol(req.Device, req.HeaderLog); err != nil {
		injectError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded", "device": req.Device})
}

func (s *Server) handleInjectCXLMedia(c *gin.Context) {
	var req mediaInjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev := cper.GenMediaEvent{
		DPA:             req.DPA,
		Descriptor:      req.Descriptor,
		Type:            req.Type,
		TransactionType: req.TransactionType,
		Channel:         req.Channel,
		Rank:            req.Rank,
	}
	if err := s.bench.InjectCXLMedia(req.Device, ev); err != nil {
		injectError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded", "device": req.Device})
}

func (s *Server) handleDevices(c *gin.Context) {
	out := make(map[string]gin.H, len(s.bench.Devices))
	for id, d := range s.bench.Devices {
		out[id] = gin.H{
			"vendor": d.VendorID,
			"device": d.DeviceID,
			"role":   d.Role.String(),
			"bus":    d.Bus,
			"slot":   d.Slot,
		}
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

func (s *Server) handleScrub(c *gin.Context) {
	base, size := s.bench.RASF.ScrubWindow()
	c.JSON(http.StatusOK, gin.H{
		"running": s.bench.RASF.ScrubRunning(),
		"base":    base,
		"size":    size,
	})
}

func (s *Server) handleMHD(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"head":    s.bench.MHD.HeadID(),
		"blocks":  s.bench.MHD.Blocks(),
		"extents": s.bench.MHD.OwnedExtents(),
	})
}

func (s *Server) handleMHDClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy, ok := parsePolicy(req.Policy)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown policy: " + req.Policy})
		return
	}
	got, err := s.bench.MHD.Claim([]mhd.Extent{{Start: req.Start, Count: req.Count}}, policy)
	if err != nil {
		injectError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "claimed": got})
}

func (s *Server) handleMHDRelease(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.bench.MHD.Release([]mhd.Extent{{Start: req.Start, Count: req.Count}}); err != nil {
		injectError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func sourceParam(c *gin.Context) (int, bool) {
	switch c.Param("source") {
	case "0", "sea":
		return ghes.SourceIDSEA, true
	case "1", "gpio":
		return ghes.SourceIDGPIO, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source: " + c.Param("source")})
		return 0, false
	}
}

func parsePolicy(s string) (mhd.Policy, bool) {
	switch s {
	case "", "all-or-nothing":
		return mhd.PolicyAllOrNothing, true
	case "best-effort":
		return mhd.PolicyBestEffort, true
	case "manual":
		return mhd.PolicyManual, true
	default:
		return 0, false
	}
}

// injectError maps domain errors onto HTTP statuses.
func injectError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, testbench.ErrUnknownDevice):
		status = http.StatusNotFound
	case errors.Is(err, ghes.ErrInvalidSource), errors.Is(err, ghes.ErrUnknownSource),
		errors.Is(err, ghes.ErrEventRecord), errors.Is(err, mhd.ErrBlockRange):
		status = http.StatusBadRequest
	case errors.Is(err, ghes.ErrNotAcknowledged), errors.Is(err, mhd.ErrBlockOwned):
		status = http.StatusConflict
	case errors.Is(err, ghes.ErrRecordTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, ghes.ErrNotLinked):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
