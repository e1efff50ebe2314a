package models_test

import (
	"testing"

	"github.com/htkfoods/storefront/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSaveProductRequest_Product(t *testing.T) {
	saved := models.SaveProductRequest{ID: "ghee-500", Name: "Desi Ghee", Price: 650, Image: "ghee.png"}.Product()

	assert.Equal(t, models.SavedProduct{ID: "ghee-500", Name: "Desi Ghee", Price: 650, Image: "ghee.png"}, saved)
}
