package api

import (
	"net/http"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createCategory(c *gin.Context) {
	var req service.CategoryRequest
	if err := bindJSON(c, &req, "api.createCategory", nil); err != nil {
		h.renderError(c, err)
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) listCategories(c *gin.Context) {
	var q models.ListQuery
	if err := bindQuery(c, &q, "api.listCategories"); err != nil {
		h.renderError(c, err)
		return
	}

	page, err := h.catalog.ListCategories(c.Request.Context(), q)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getCategory(c *gin.Context) {
	category, err := h.catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) createItem(c *gin.Context) {
	var req service.ItemRequest
	if err := bindJSON(c, &req, "api.createItem", nil); err != nil {
		h.renderError(c, err)
		return
	}

	item, err := h.catalog.CreateItem(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) listItems(c *gin.Context) {
	var filter service.ItemFilter
	if err := bindQuery(c, &filter, "api.listItems"); err != nil {
		h.renderError(c, err)
		return
	}

	page, err := h.catalog.ListItems(c.Request.Context(), filter)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getItem(c *gin.Context) {
	item, err := h.catalog.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) updateItem(c *gin.Context) {
	var req service.ItemRequest
	if err := bindJSON(c, &req, "api.updateItem", nil); err != nil {
		h.renderError(c, err)
		return
	}

	item, err := h.catalog.UpdateItem(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) deleteItem(c *gin.Context) {
	if err := h.catalog.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) itemStats(c *gin.Context) {
	stats, err := h.catalog.ItemStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// quotePackage previews what checkout would charge for one package
func (h *Handler) quotePackage(c *gin.Context) {
	quote, err := h.catalog.QuotePackage(c.Request.Context(), c.Param("id"), c.Param("package_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}
