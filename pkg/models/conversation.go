package models

type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// Created timestamp (ms since epoch); immutable after creation
	CreatedAt int64 `json:"createdAt"`
	// Updated timestamp (ms); bumped when the title is assigned
	UpdatedAt int64 `json:"updatedAt"`
}
