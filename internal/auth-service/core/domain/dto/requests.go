package dto

type SignupDto struct {
	Username string `json:"username" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=5,max=50"`
	Role     string `json:"role" validate:"required,oneof=PATIENT DOCTOR AMBULANCE ADMIN"`
}

type SigninDto struct {
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=5,max=50"`
}

// TokenResponse is returned from both signup and signin.
type TokenResponse struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
}
