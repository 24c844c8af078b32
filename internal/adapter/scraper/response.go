package scraper

import (
	"time"

	"github.com/heartmarshall/auctionwatch/internal/domain"
	"github.com/heartmarshall/auctionwatch/internal/fetch"
)

// listingRow represents one entry of the sidecar's listing-page response.
type listingRow struct {
	Reference  string    `json:"reference"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	CurrentBid float64   `json:"current_bid"`
	EndTime    time.Time `json:"end_time"`
}

func (r listingRow) toSummary() fetch.Summary {
	return fetch.Summary{
		Reference:  r.Reference,
		Title:      r.Title,
		Category:   r.Category,
		CurrentBid: r.CurrentBid,
		EndTime:    r.EndTime,
	}
}

// detailRow represents the sidecar's full listing detail response.
type detailRow struct {
	Reference    string    `json:"reference"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	Subcategory  string    `json:"subcategory"`
	District     string    `json:"district"`
	Municipality string    `json:"municipality"`
	BaseValue    float64   `json:"base_value"`
	OpeningValue float64   `json:"opening_value"`
	MinimumValue float64   `json:"minimum_value"`
	CurrentBid   float64   `json:"current_bid"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Canceled     bool      `json:"canceled"`
	Started      bool      `json:"started"`
}

func (r detailRow) toEvent() domain.Event {
	return domain.Event{
		Reference:      r.Reference,
		Title:          r.Title,
		Category:       r.Category,
		Subcategory:    r.Subcategory,
		District:       r.District,
		Municipality:   r.Municipality,
		BaseValue:      r.BaseValue,
		OpeningValue:   r.OpeningValue,
		MinimumValue:   r.MinimumValue,
		CurrentBid:     r.CurrentBid,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		EndTimeInitial: r.EndTime,
		Canceled:       r.Canceled,
		Started:        r.Started,
	}
}
