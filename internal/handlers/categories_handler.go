package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/validation"
)

func (s *server) listCategories(c *gin.Context) {
	cats, err := s.categories.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "categories": cats})
}

func (s *server) activeCategories(c *gin.Context) {
	cats, err := s.categories.Active(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "categories": cats})
}

func (s *server) createCategory(c *gin.Context) {
	var req validation.CategoryRequest
	if err := validation.BindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	created, err := s.categories.Create(c.Request.Context(), categoryFrom(req))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Category created", "category": created})
}

func (s *server) updateCategory(c *gin.Context) {
	var req validation.CategoryRequest
	if err := validation.BindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	cat := categoryFrom(req)
	cat.ID = c.Param("id")
	updated, err := s.categories.Update(c.Request.Context(), cat)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Category updated", "category": updated})
}

func (s *server) deleteCategory(c *gin.Context) {
	if err := s.categories.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Category deleted"})
}

func categoryFrom(req validation.CategoryRequest) catalog.Category {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return catalog.Category{
		Name:          req.Name,
		UnitRate:      req.UnitRate,
		UnitWeightKg:  req.UnitWeightKg,
		IsPacketBased: req.IsPacketBased,
		IsActive:      active,
		Description:   req.Description,
	}
}
