package api

import (
	"time"

	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/scheduler"
)

// Posts
type PostListResponse struct {
	Posts []domain.Post `json:"posts"`
	Count int           `json:"count"`
}

type RewriteRequest struct {
	Selection   string `json:"selection"`
	Instruction string `json:"instruction"`
}

type DispatchResponse struct {
	Post      domain.Post            `json:"post"`
	Variation domain.SocialVariation `json:"variation"`
}

// Trends
type TrendListResponse struct {
	Trends []domain.Trend `json:"trends"`
}

// Settings
type ProfileRequest struct {
	ID domain.ProfileID `json:"id"`
}

type ProfileResponse struct {
	Active    domain.Profile   `json:"active"`
	Available []domain.Profile `json:"available"`
}

// Status
type NotificationResponse struct {
	Notification *notify.Notification `json:"notification"`
}

type StatusResponse struct {
	Busy         bool                 `json:"busy"`
	Holder       *gate.Holder         `json:"holder,omitempty"`
	Progress     *notify.Progress     `json:"progress,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	Scheduler    scheduler.Status     `json:"scheduler"`
	Posts        PostCounts           `json:"posts"`
	Clients      int                  `json:"clients"`
	Timestamp    time.Time            `json:"timestamp"`
}

// PostCounts breaks the collection down by status.
type PostCounts struct {
	Total     int `json:"total"`
	Draft     int `json:"draft"`
	Scheduled int `json:"scheduled"`
	Published int `json:"published"`
	Live      int `json:"live"`
	Due       int `json:"due"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
