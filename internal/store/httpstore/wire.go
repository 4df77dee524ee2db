package httpstore

import (
	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/value"
)

// Request and response bodies of the hosted API.

type putItemsRequest struct {
	Items []value.Object `json:"items"`
}

type putItemsResponse struct {
	Processed struct {
		Items []value.Object `json:"items"`
	} `json:"processed"`
	Failed *struct {
		Items []value.Object `json:"items"`
	} `json:"failed,omitempty"`
}

type insertRequest struct {
	Item value.Object `json:"item"`
}

type queryRequest struct {
	Query query.Wire `json:"query,omitempty"`
	Limit int        `json:"limit,omitempty"`
	Last  string     `json:"last,omitempty"`
}

type queryResponse struct {
	Paging struct {
		Size int    `json:"size"`
		Last string `json:"last,omitempty"`
	} `json:"paging"`
	Items []value.Object `json:"items"`
}

type errorResponse struct {
	Errors []string `json:"errors"`
}
