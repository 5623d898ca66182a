package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/models"
)

func ListCategories(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var categories []models.Category
	if err := gormDB.Order("name ASC").Find(&categories).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving categories.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}
