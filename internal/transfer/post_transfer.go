package transfer

// PostCreation is the multipart form of POST /api/posts. The image travels
// as a separate file field.
type PostCreation struct {
	Caption          string `form:"caption" validate:"max=2200"`
	ScheduledDate    string `form:"scheduledDate" validate:"required"`
	Platforms        string `form:"platforms"`
	MaxRetryAttempts int    `form:"maxRetryAttempts" validate:"omitempty,min=1,max=20"`
	RetryDelay       int64  `form:"retryDelay" validate:"omitempty,min=0"`
}

// PostUpdate is a partial update; absent fields are left alone. A present but
// blank caption is regenerated.
type PostUpdate struct {
	Caption          *string                `json:"caption" validate:"omitempty,max=2200"`
	ImageURL         *string                `json:"imageUrl" validate:"omitempty,url"`
	ScheduledDate    *string                `json:"scheduledDate"`
	MaxRetryAttempts *int                   `json:"maxRetryAttempts" validate:"omitempty,min=1,max=20"`
	RetryDelay       *int64                 `json:"retryDelay" validate:"omitempty,min=0"`
	MetaData         map[string]interface{} `json:"metaData"`
}

type CaptionResponse struct {
	Caption string `json:"caption"`
}
