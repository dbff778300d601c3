package models

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is a successful login reply.
type LoginResponse struct {
	Token string `json:"token"`
}
