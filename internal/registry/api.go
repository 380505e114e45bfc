package registry

import "downtime-backend/internal/store"

// ApiResponse models the top-level structure of the registry's response.
type ApiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    struct {
		Page     int                  `json:"page"`
		PageSize int                  `json:"pageSize"`
		Total    int                  `json:"total"`
		Items    []store.RegistryItem `json:"items"`
	} `json:"data"`
}
