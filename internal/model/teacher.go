package model

import "time"

// Teacher represents an educator who authors quiz sets and monitors sessions.
type Teacher struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TeacherLoginRequest is the payload for teacher authentication.
type TeacherLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// TeacherLoginResponse is returned after successful teacher login.
type TeacherLoginResponse struct {
	Token   string  `json:"token"`
	Teacher Teacher `json:"teacher"`
}
