package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	keyworddomain "github.com/smallbiznis/prospector/internal/keyword/domain"
)

type createKeywordsRequest struct {
	Terms []string `json:"terms"`
}

func (s *Server) CreateKeywords(c *gin.Context) {
	var req createKeywordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.keywords.Create(c.Request.Context(), req.Terms)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) ListKeywords(c *gin.Context) {
	var query keyworddomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.keywords.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Keywords,
		"page_info": resp.PageInfo,
	})
}
