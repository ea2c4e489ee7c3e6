package model

import "time"

type Drawing struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateDrawingRequest struct {
	Title string `json:"title"`
}

type CreateDrawingResponse struct {
	ID string `json:"id"`
}

type RenameDrawingRequest struct {
	Title string `json:"title"`
}
