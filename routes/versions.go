package routes

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/middleware"
	"context-rag-platform/models"
	"context-rag-platform/services"
	"context-rag-platform/utils"
)

type CreateVersionRequest struct {
	Description string         `json:"description"`
	BumpMajor   bool           `json:"bump_major"`
	Changes     map[string]any `json:"changes"`
}

type TagVersionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	TagType     string `json:"tag_type"`
}

// SetupVersionRoutes registers the version history endpoints under
// /contexts/:id/versions.
func SetupVersionRoutes(router *gin.Engine, vm *services.VersionManagerService, export *services.VersionExportService, authMiddleware *middleware.AuthMiddleware) {
	versions := router.Group("/contexts/:id/versions")
	versions.Use(authMiddleware.RequireAuth())

	versions.POST("", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		var req CreateVersionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		v, err := vm.CreateVersion(c.Request.Context(), id, middleware.GetUserID(c), req.Description, req.BumpMajor, req.Changes)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, v)
	})

	versions.GET("", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		list, err := vm.ListVersions(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": list, "count": len(list)})
	})

	versions.GET("/current", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		v, err := vm.GetCurrentVersion(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if v == nil {
			utils.RespondWithNotFound(c, "Context has no versions yet")
			return
		}
		c.JSON(http.StatusOK, v)
	})

	versions.GET("/compare", func(c *gin.Context) {
		if _, ok := parseObjectID(c, "id"); !ok {
			return
		}
		from, ok := parseQueryObjectID(c, "from")
		if !ok {
			return
		}
		to, ok := parseQueryObjectID(c, "to")
		if !ok {
			return
		}
		diff, err := vm.CompareVersions(c.Request.Context(), from, to)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, diff)
	})

	versions.GET("/export", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		buf, err := export.ExportHistory(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		filename := fmt.Sprintf("version-history-%s-%s.xlsx", id.Hex(), time.Now().Format("20060102"))
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	})

	versions.GET("/:versionId/verify", func(c *gin.Context) {
		if _, ok := parseObjectID(c, "id"); !ok {
			return
		}
		versionID, ok := parseObjectID(c, "versionId")
		if !ok {
			return
		}
		valid, err := vm.VerifyIntegrity(c.Request.Context(), versionID)
		if err != nil && !errors.Is(err, models.ErrIntegrity) {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"version_id": versionID.Hex(), "valid": valid})
	})

	versions.POST("/:versionId/restore", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		versionID, ok := parseObjectID(c, "versionId")
		if !ok {
			return
		}
		v, err := vm.RestoreVersion(c.Request.Context(), id, versionID, middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	})

	versions.POST("/:versionId/tags", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		versionID, ok := parseObjectID(c, "versionId")
		if !ok {
			return
		}
		var req TagVersionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		tag, err := vm.TagVersion(c.Request.Context(), id, versionID, middleware.GetUserID(c), req.Name, req.Description, req.TagType)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tag)
	})

	tags := router.Group("/contexts/:id/tags")
	tags.Use(authMiddleware.RequireAuth())

	tags.GET("", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		list, err := vm.ListTags(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tags": list, "count": len(list)})
	})

	tags.DELETE("/:name", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		if err := vm.DeleteTag(c.Request.Context(), id, c.Param("name")); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})
}

func parseQueryObjectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Query(param))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid identifier", gin.H{param: c.Query(param)})
		return primitive.NilObjectID, false
	}
	return id, true
}
