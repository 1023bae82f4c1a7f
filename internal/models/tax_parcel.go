package models

import (
	"time"
)

// TaxParcel is a canonical parcel as stored in the assessment database.
// The address matcher only reads it; parcels are owned by the assessment system.
// All nullable fields use pointers to distinguish between zero values and NULL.
type TaxParcel struct {
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	Situs            *string   `json:"situs,omitempty"`
	OwnerName        *string   `json:"ownerName,omitempty"`
	OwnerAddress     *string   `json:"ownerAddress,omitempty"`
	LegalDescription *string   `json:"legalDescription,omitempty"`
	CountyName       string    `json:"countyName"`
	ParcelNumber     string    `json:"parcelNumber"`
}

// TableName is the table holding the parcel index.
func (TaxParcel) TableName() string {
	return "tax_parcels"
}

// SitusAddress returns the situs address or the empty string.
func (p *TaxParcel) SitusAddress() string {
	if p == nil || p.Situs == nil {
		return ""
	}
	return *p.Situs
}

// ParcelAddress is one entry of the parcel address index used for matching.
type ParcelAddress struct {
	ParcelNumber string `json:"parcelNumber"`
	Address      string `json:"address"`
}
