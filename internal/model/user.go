package model

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisterDate Timestamp `json:"registerDate"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by both /auth/login and /auth/register.
type AuthResponse struct {
	Success bool   `json:"success"`
	User    *User  `json:"user"`
	Token   string `json:"token"`
	Message string `json:"message"`
}
