package models

type HealthResponse struct {
	Status string `json:"status"`
}

type AcceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type CatalogResponse struct {
	Avatars []Avatar `json:"avatars"`
	Voices  []Voice  `json:"voices"`
}
