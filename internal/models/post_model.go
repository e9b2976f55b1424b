package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// Platforms lists every platform a post can target, in publish order.
var Platforms = []Platform{PlatformInstagram, PlatformFacebook}

func ParsePlatform(s string) (Platform, bool) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

type PostStatus string

const (
	PostStatusPending PostStatus = "pending"
	PostStatusPosted  PostStatus = "posted"
	PostStatusFailed  PostStatus = "failed"
)

const (
	DefaultMaxRetryAttempts = 5
	DefaultRetryDelay       = 60 * time.Second
)

// PlatformState is the publish bookkeeping of one post on one platform.
type PlatformState struct {
	Status      PostStatus `bson:"status" json:"status"`
	Attempts    int        `bson:"attempts" json:"attempts"`
	LastAttempt *time.Time `bson:"last_attempt" json:"lastAttempt"`
	ExternalID  string     `bson:"external_id,omitempty" json:"externalId,omitempty"`
	MediaURL    string     `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	Permalink   string     `bson:"permalink,omitempty" json:"permalink,omitempty"`
	PostedAt    *time.Time `bson:"posted_at,omitempty" json:"postedAt,omitempty"`
	LastError   string     `bson:"last_error,omitempty" json:"lastError,omitempty"`
}

func (s PlatformState) Terminal() bool {
	return s.Status == PostStatusPosted || s.Status == PostStatusFailed
}

type Post struct {
	ID               primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Caption          string                 `bson:"caption" json:"caption"`
	ImageURL         string                 `bson:"image_url" json:"imageUrl"`
	ScheduledDate    time.Time              `bson:"scheduled_date" json:"scheduledDate"`
	Status           PostStatus             `bson:"status" json:"status"`
	PostedAt         *time.Time             `bson:"posted_at,omitempty" json:"postedAt,omitempty"`
	Platforms        []Platform             `bson:"platforms" json:"platforms"`
	Instagram        PlatformState          `bson:"instagram" json:"instagram"`
	Facebook         PlatformState          `bson:"facebook" json:"facebook"`
	MaxRetryAttempts int                    `bson:"max_retry_attempts" json:"maxRetryAttempts"`
	RetryDelayMS     int64                  `bson:"retry_delay_ms" json:"retryDelay"`
	MetaData         map[string]interface{} `bson:"meta_data" json:"metaData"`
	CreatedAt        time.Time              `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time              `bson:"updated_at" json:"updatedAt"`
}

func (p *Post) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMS) * time.Millisecond
}

func (p *Post) Targets(platform Platform) bool {
	for _, t := range p.Platforms {
		if t == platform {
			return true
		}
	}
	return false
}

// State returns a pointer into the post so callers can mutate the platform's bookkeeping.
func (p *Post) State(platform Platform) *PlatformState {
	switch platform {
	case PlatformInstagram:
		return &p.Instagram
	case PlatformFacebook:
		return &p.Facebook
	}
	return nil
}

// AggregateStatus derives the post-level status from its targeted platforms:
// posted iff all are posted, failed iff all are failed, pending otherwise.
func (p *Post) AggregateStatus() PostStatus {
	if len(p.Platforms) == 0 {
		return PostStatusPending
	}
	posted, failed := 0, 0
	for _, platform := range p.Platforms {
		state := p.State(platform)
		if state == nil {
			continue
		}
		switch state.Status {
		case PostStatusPosted:
			posted++
		case PostStatusFailed:
			failed++
		}
	}
	switch {
	case posted == len(p.Platforms):
		return PostStatusPosted
	case failed == len(p.Platforms):
		return PostStatusFailed
	}
	return PostStatusPending
}

// Clone returns a deep copy so in-memory stores never share state with callers.
func (p *Post) Clone() *Post {
	c := *p
	c.Platforms = append([]Platform(nil), p.Platforms...)
	c.PostedAt = cloneTime(p.PostedAt)
	c.Instagram = p.Instagram.clone()
	c.Facebook = p.Facebook.clone()
	if p.MetaData != nil {
		c.MetaData = make(map[string]interface{}, len(p.MetaData))
		for k, v := range p.MetaData {
			c.MetaData[k] = v
		}
	}
	return &c
}

func (s PlatformState) clone() PlatformState {
	s.LastAttempt = cloneTime(s.LastAttempt)
	s.PostedAt = cloneTime(s.PostedAt)
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PlatformPatch is a field-level update of one platform's state. Nil fields are left untouched.
type PlatformPatch struct {
	Status      *PostStatus
	Attempts    *int
	LastAttempt *time.Time
	ExternalID  *string
	MediaURL    *string
	Permalink   *string
	PostedAt    *time.Time
	LastError   *string
}

// PostPatch is a field-level update of a post. Nil fields are left untouched.
type PostPatch struct {
	Caption          *string
	ImageURL         *string
	ScheduledDate    *time.Time
	Status           *PostStatus
	PostedAt         *time.Time
	MaxRetryAttempts *int
	RetryDelayMS     *int64
	MetaData         map[string]interface{}
	Platforms        map[Platform]PlatformPatch

	// Guard makes the update conditional on the platform's attempts still
	// holding the given value.
	Guard *AttemptGuard
}

type AttemptGuard struct {
	Platform Platform
	Attempts int
}

// Apply mutates p in place. Stores without native partial updates use it.
func (patch PostPatch) Apply(p *Post) {
	if patch.Caption != nil {
		p.Caption = *patch.Caption
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.ScheduledDate != nil {
		p.ScheduledDate = *patch.ScheduledDate
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.PostedAt != nil {
		p.PostedAt = cloneTime(patch.PostedAt)
	}
	if patch.MaxRetryAttempts != nil {
		p.MaxRetryAttempts = *patch.MaxRetryAttempts
	}
	if patch.RetryDelayMS != nil {
		p.RetryDelayMS = *patch.RetryDelayMS
	}
	if patch.MetaData != nil {
		if p.MetaData == nil {
			p.MetaData = map[string]interface{}{}
		}
		for k, v := range patch.MetaData {
			p.MetaData[k] = v
		}
	}
	for platform, pp := range patch.Platforms {
		state := p.State(platform)
		if state == nil {
			continue
		}
		pp.apply(state)
	}
}

func (pp PlatformPatch) apply(s *PlatformState) {
	if pp.Status != nil {
		s.Status = *pp.Status
	}
	if pp.Attempts != nil {
		s.Attempts = *pp.Attempts
	}
	if pp.LastAttempt != nil {
		s.LastAttempt = cloneTime(pp.LastAttempt)
	}
	if pp.ExternalID != nil {
		s.ExternalID = *pp.ExternalID
	}
	if pp.MediaURL != nil {
		s.MediaURL = *pp.MediaURL
	}
	if pp.Permalink != nil {
		s.Permalink = *pp.Permalink
	}
	if pp.PostedAt != nil {
		s.PostedAt = cloneTime(pp.PostedAt)
	}
	if pp.LastError != nil {
		s.LastError = *pp.LastError
	}
}
