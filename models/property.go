package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PropertyStatus string

const (
	StatusAvailable PropertyStatus = "available"
	StatusSold      PropertyStatus = "sold"
)

type Property struct {
	ID               string           `json:"id" db:"id"`
	TenantID         string           `json:"tenant_id" db:"tenant_id"`
	Name             string           `json:"property_name" db:"property_name"`
	Description      string           `json:"description" db:"description"`
	Location         string           `json:"location" db:"location"`
	Latitude         *float64         `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64         `json:"longitude,omitempty" db:"longitude"`
	Price            *decimal.Decimal `json:"price,omitempty" db:"price"`
	PropertyType     string           `json:"property_type" db:"property_type"`
	Status           PropertyStatus   `json:"status" db:"status"`
	Bedrooms         *int             `json:"bedrooms,omitempty" db:"bedrooms"`
	Bathrooms        *decimal.Decimal `json:"bathrooms,omitempty" db:"bathrooms"`
	SquareMeters     *decimal.Decimal `json:"square_meters,omitempty" db:"square_meters"`
	LotSize          *decimal.Decimal `json:"lot_size,omitempty" db:"lot_size"`
	ParkingSpaces    *int             `json:"parking_spaces,omitempty" db:"parking_spaces"`
	Pool             *bool            `json:"pool,omitempty" db:"pool"`
	Amenities        []string         `json:"amenities" db:"amenities"`
	SourceURL        string           `json:"source_url" db:"source_url"`
	SourceWebsite    string           `json:"source_website" db:"source_website"`
	ListingID        string           `json:"listing_id,omitempty" db:"listing_id"`
	DateListed       *time.Time       `json:"date_listed,omitempty" db:"date_listed"`
	ContentForSearch string           `json:"-" db:"content_for_search"`
	HasEmbedding     bool             `json:"has_embedding" db:"-"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
	Images           []PropertyImage  `json:"images,omitempty" db:"-"`
}

type PropertyImage struct {
	ID         string    `json:"id" db:"id"`
	PropertyID string    `json:"property_id" db:"property_id"`
	URL        string    `json:"url" db:"url"`
	ArchiveURL string    `json:"archive_url,omitempty" db:"archive_url"`
	IsPrimary  bool      `json:"is_primary" db:"is_primary"`
	SortOrder  int       `json:"sort_order" db:"sort_order"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Tenant struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
