package transfer

type PromptInput struct {
	Text string `json:"text" validate:"required,max=2000"`
}
