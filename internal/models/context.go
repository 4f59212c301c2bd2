package models

import "time"

// WorkContext pins the hub, project, folder, and item that recorded moves
// apply to. It survives between CLI invocations.
type WorkContext struct {
	HubID     string    `json:"hub_id"`
	ProjectID string    `json:"project_id"`
	FolderID  string    `json:"folder_id"`
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"item_name,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Complete reports whether the context names everything a save needs.
func (w *WorkContext) Complete() bool {
	return w.ProjectID != "" && w.ItemID != ""
}
