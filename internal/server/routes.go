package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/schema"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    s.opts.Name,
		"kind":    s.opts.Kind,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"service": "telectl",
	})
}

func (s *Server) stats(c *gin.Context) {
	if s.opts.Status == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.opts.Status())
}

type packetView struct {
	Type      string   `json:"type"`
	Timestamp uint64   `json:"timestamp"`
	Endpoints []string `json:"endpoints"`
	Text      string   `json:"text"`
}

// packets lists recent packets for ?endpoint=NAME rendered with ?format=.
func (s *Server) packets(c *gin.Context) {
	if s.opts.Recent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no local endpoints"})
		return
	}
	ep, err := schema.ParseEndpoint(c.DefaultQuery("endpoint", schema.SDCard.String()))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format, err := protocol.ParsePayloadFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recent := s.opts.Recent(ep)
	out := make([]packetView, 0, len(recent))
	for _, p := range recent {
		eps := make([]string, len(p.MessageType.Endpoints))
		for i, e := range p.MessageType.Endpoints {
			eps[i] = e.String()
		}
		out = append(out, packetView{
			Type:      p.MessageType.Type.String(),
			Timestamp: p.Timestamp,
			Endpoints: eps,
			Text:      s.opts.Codec.Format(s.opts.Catalog, p, format),
		})
		p.Release()
	}
	c.JSON(http.StatusOK, gin.H{"endpoint": ep.String(), "packets": out})
}

func (s *Server) archive(c *gin.Context) {
	if s.opts.Archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no archive configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	recs, err := s.opts.Archive(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}
