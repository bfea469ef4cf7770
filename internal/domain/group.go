package domain

// Participant is one member of a cached group. Admin is nil for regular
// members and "admin" or "superadmin" otherwise.
type Participant struct {
	ID          string  `json:"id"`
	PhoneNumber string  `json:"phoneNumber,omitempty"`
	LID         string  `json:"lid,omitempty"`
	Admin       *string `json:"admin"`
}

func (p Participant) IsAdmin() bool {
	return p.Admin != nil && *p.Admin != ""
}

// GroupMetadata is the full last-known state of a group.
type GroupMetadata struct {
	ID                  string        `json:"id"`
	Subject             string        `json:"subject"`
	Owner               string        `json:"owner"`
	Desc                string        `json:"desc"`
	Creation            int64         `json:"creation"`
	Participants        []Participant `json:"participants"`
	Size                int           `json:"size"`
	Announce            bool          `json:"announce"`
	Restrict            bool          `json:"restrict"`
	JoinApprovalMode    bool          `json:"joinApprovalMode"`
	MemberAddMode       bool          `json:"memberAddMode"`
	EphemeralDuration   uint32        `json:"ephemeralDuration"`
	IsCommunity         bool          `json:"isCommunity"`
	IsCommunityAnnounce bool          `json:"isCommunityAnnounce"`
	LinkedParent        string        `json:"linkedParent"`
	InviteCode          string        `json:"inviteCode,omitempty"`
}

// GroupSummary is the listing projection of a cached group.
type GroupSummary struct {
	ID               string `json:"id"`
	Subject          string `json:"subject"`
	ParticipantCount int    `json:"participantCount"`
	IsCommunity      bool   `json:"isCommunity"`
	LinkedParent     string `json:"linkedParent,omitempty"`
}

// ParticipantAction is a membership change on a group.
type ParticipantAction string

const (
	ParticipantsAdd     ParticipantAction = "add"
	ParticipantsRemove  ParticipantAction = "remove"
	ParticipantsPromote ParticipantAction = "promote"
	ParticipantsDemote  ParticipantAction = "demote"
)
