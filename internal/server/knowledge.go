package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/service"
	"github.com/raphaelgruber/snapknow/internal/store"
)

// knowledgeAPI serves reads and deletes over stored knowledge records.
type knowledgeAPI struct {
	store service.Store
}

func listFilterFromQuery(c *gin.Context) models.ListFilter {
	return models.ListFilter{
		Category:    c.Query("category"),
		Subcategory: c.Query("subcategory"),
		Topic:       c.Query("topic"),
		Status:      models.Status(c.Query("status")),
	}
}

func (k *knowledgeAPI) handleList(c *gin.Context) {
	page := models.Page{Number: 1, Size: 20}
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && v > 0 {
		page.Number = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil && v > 0 && v <= 100 {
		page.Size = v
	}

	records, total, err := k.store.ListKnowledge(c.Request.Context(), listFilterFromQuery(c), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.Knowledge{}
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     records,
		"total":     total,
		"page":      page.Number,
		"page_size": page.Size,
	})
}

func (k *knowledgeAPI) handleGet(c *gin.Context) {
	record, err := k.store.GetKnowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (k *knowledgeAPI) handleDelete(c *gin.Context) {
	err := k.store.DeleteKnowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (k *knowledgeAPI) handleTaxonomy(c *gin.Context) {
	taxonomy, err := k.store.GetTaxonomy(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, taxonomy)
}
