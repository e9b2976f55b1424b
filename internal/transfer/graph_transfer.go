package transfer

type GraphIDResponse struct {
	ID string `json:"id"`
}

type ContainerStatusResponse struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
}

type InstagramMediaInfo struct {
	ID        string `json:"id"`
	MediaURL  string `json:"media_url"`
	Permalink string `json:"permalink"`
}

type FacebookPostInfo struct {
	ID           string `json:"id"`
	PermalinkURL string `json:"permalink_url"`
}

type GraphErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}
