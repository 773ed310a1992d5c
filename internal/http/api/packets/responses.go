package packets

import "github.com/google/uuid"

type ExportResponse struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Location   string    `json:"location"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
