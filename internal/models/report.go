package models

import "time"

// ReportType is the incident category of a pin on the map.
type ReportType string

const (
	ReportTypeArmedConfrontation ReportType = "armed_confrontation"
	ReportTypeRoadBlockade       ReportType = "road_blockade"
	ReportTypeCartelActivity     ReportType = "cartel_activity"
	ReportTypeBuildingFire       ReportType = "building_fire"
	ReportTypeLooting            ReportType = "looting"
	ReportTypeGeneralDanger      ReportType = "general_danger"
	ReportTypeCriminalActivity   ReportType = "criminal_activity"
)

// ReportTypes lists every accepted category in display order.
var ReportTypes = []ReportType{
	ReportTypeArmedConfrontation,
	ReportTypeRoadBlockade,
	ReportTypeCartelActivity,
	ReportTypeBuildingFire,
	ReportTypeLooting,
	ReportTypeGeneralDanger,
	ReportTypeCriminalActivity,
}

// Valid reports whether t is one of the known categories.
func (t ReportType) Valid() bool {
	for _, known := range ReportTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	StatusUnconfirmed ReportStatus = "unconfirmed"
	StatusConfirmed   ReportStatus = "confirmed"
	StatusDenied      ReportStatus = "denied"
	StatusExpired     ReportStatus = "expired"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case StatusUnconfirmed, StatusConfirmed, StatusDenied, StatusExpired:
		return true
	}
	return false
}

// Report represents a row of the 'reports' table.
type Report struct {
	ID                 string       `db:"id"`
	Type               ReportType   `db:"type"`
	Latitude           float64      `db:"latitude"`
	Longitude          float64      `db:"longitude"`
	Description        *string      `db:"description"`
	SourceURL          *string      `db:"source_url"`
	CreatorFingerprint *string      `db:"creator_fingerprint"`
	Status             ReportStatus `db:"status"`
	CreatedAt          time.Time    `db:"created_at"`
	LastActivityAt     time.Time    `db:"last_activity_at"`
	AdminLockedAt      *time.Time   `db:"admin_locked_at"`
}

// Locked reports whether an admin has taken ownership of the status.
func (r *Report) Locked() bool {
	return r.AdminLockedAt != nil
}

// ReportView is the report shape returned to clients.
type ReportView struct {
	ID             string       `json:"id"`
	Type           ReportType   `json:"type"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	Description    *string      `json:"description"`
	SourceURL      *string      `json:"sourceUrl"`
	Status         ReportStatus `json:"status"`
	AdminLockedAt  *time.Time   `json:"adminLockedAt"`
	CreatedAt      time.Time    `json:"createdAt"`
	LastActivityAt time.Time    `json:"lastActivityAt"`
	Score          float64      `json:"score"`
	ConfirmCount   int          `json:"confirmCount"`
	DenyCount      int          `json:"denyCount"`
	MessageCount   int          `json:"messageCount"`
	SourceCount    int          `json:"sourceCount"`
}

// BoundingBox is an inclusive latitude/longitude window.
type BoundingBox struct {
	SouthWestLat float64
	SouthWestLng float64
	NorthEastLat float64
	NorthEastLng float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.SouthWestLat && lat <= b.NorthEastLat &&
		lng >= b.SouthWestLng && lng <= b.NorthEastLng
}

// ActivityCounts holds the per-report totals of chat messages and sources.
type ActivityCounts struct {
	ReportID string `db:"report_id"`
	Messages int    `db:"message_count"`
	Sources  int    `db:"source_count"`
}

// CreateReportInput is the payload for pinning a new incident.
type CreateReportInput struct {
	Type               string   `json:"type"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Description        string   `json:"description"`
	SourceURL          string   `json:"source_url"`
	CreatorFingerprint string   `json:"creator_fingerprint"`
}

// UpdateReportInput carries an admin edit. Nil fields are left untouched;
// an empty string clears description or source_url.
type UpdateReportInput struct {
	Type           *string    `json:"type"`
	Status         *string    `json:"status"`
	Description    *string    `json:"description"`
	SourceURL      *string    `json:"sourceUrl"`
	CreatedAt      *time.Time `json:"createdAt"`
	LastActivityAt *time.Time `json:"lastActivityAt"`
	Locked         *bool      `json:"locked"`
}

// Empty reports whether the edit carries no field at all.
func (in UpdateReportInput) Empty() bool {
	return in.Type == nil && in.Status == nil && in.Description == nil &&
		in.SourceURL == nil && in.CreatedAt == nil && in.LastActivityAt == nil &&
		in.Locked == nil
}
