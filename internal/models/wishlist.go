package models

type SavedProduct struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image"`
}

// WishlistRecord is the persisted shape of users/{uid}/wishlist/main.
type WishlistRecord struct {
	Items []SavedProduct `json:"items"`
}

type SaveProductRequest struct {
	ID    string `json:"id"    validate:"required,max=128"`
	Name  string `json:"name"  validate:"required,max=256"`
	Price int64  `json:"price" validate:"min=0"`
	Image string `json:"image" validate:"omitempty,max=1024"`
}

func (r SaveProductRequest) Product() SavedProduct {
	return SavedProduct{ID: r.ID, Name: r.Name, Price: r.Price, Image: r.Image}
}
