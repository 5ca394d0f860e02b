package api

// TokenResponse is returned by the login endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Result is the success/message envelope used by the verification and
// password endpoints.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// errorResponse is the server's error body. Detail is either a string or
// a list of validation errors.
type errorResponse struct {
	Detail any `json:"detail"`
}
