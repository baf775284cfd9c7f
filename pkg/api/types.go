package api

import (
	"github.com/joripage/stock-oms/pkg/oms"
	"github.com/joripage/stock-oms/pkg/oms/model"
)

type Config struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// EnqueueResponse answers POST /orders.
type EnqueueResponse struct {
	Ref       string           `json:"ref"`
	Checks    oms.Checks       `json:"checks"`
	Placement *model.Placement `json:"placement,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Active bool   `json:"active"`
}
