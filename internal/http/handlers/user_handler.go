// User and auth HTTP handlers.
//
// This file exposes:
//   - POST   /register
//   - POST   /login
//   - POST   /admin/login
//   - POST   /create-admin                (open until the first admin exists)
//   - GET    /users                       (admin)
//   - GET    /user/{id}                   (self or admin)
//   - PUT    /user/{id}                   (self or admin)
//   - POST   /user/{id}/profile-image     (self or admin, multipart "image")
//   - DELETE /user/{id}/profile-image     (self or admin)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/http/middleware"
	"github.com/tbourn/go-library-backend/internal/services"
)

//
// DTOs
//

// RegisterRequest is the payload of /register and /create-admin.
type RegisterRequest struct {
	Name     string `json:"name"     binding:"max=255" example:"Ursula"`
	Email    string `json:"email"    binding:"max=255" example:"ursula@example.com"`
	Password string `json:"password" binding:"max=72" example:"correct horse battery staple"`
	Phone    string `json:"phone"    binding:"max=64"`
	Address  string `json:"address"  binding:"max=1024"`
}

func (r RegisterRequest) newUser() services.NewUser {
	return services.NewUser{Name: r.Name, Email: r.Email, Password: r.Password, Phone: r.Phone, Address: r.Address}
}

// LoginRequest is the payload of /login and /admin/login.
type LoginRequest struct {
	Email    string `json:"email"    example:"ursula@example.com"`
	Password string `json:"password" example:"correct horse battery staple"`
}

// LoginResponse carries the access token and the caller's identity.
type LoginResponse struct {
	Message string `json:"message" example:"Login successful"`
	Token   string `json:"token"`
	ID      string `json:"_id"     example:"64b7f0c2a1b2c3d4e5f60719"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"    example:"user"`
}

func loginResponse(msg string, s *services.Session) LoginResponse {
	return LoginResponse{
		Message: msg,
		Token:   s.Token,
		ID:      s.User.ID,
		Name:    s.User.Name,
		Email:   s.User.Email,
		Role:    s.User.Role,
	}
}

// UpdateUserRequest is a partial profile update. Omitted fields are left
// unchanged.
type UpdateUserRequest struct {
	Name            *string `json:"name,omitempty"            binding:"omitempty,max=255"`
	Email           *string `json:"email,omitempty"           binding:"omitempty,max=255"`
	Phone           *string `json:"phone,omitempty"           binding:"omitempty,max=64"`
	Address         *string `json:"address,omitempty"         binding:"omitempty,max=1024"`
	ProfileImageURL *string `json:"profileImageUrl,omitempty"`
}

// ProfileImageResponse is returned after an upload.
type ProfileImageResponse struct {
	URL     string `json:"url"     example:"data:image/png;base64,iVBORw0KGgo..."`
	Message string `json:"message" example:"Profile image uploaded successfully"`
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Register a user
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RegisterRequest  true  "Account"
// @Success     201  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing field"
// @Failure     409  {object}  handlers.ErrorResponse  "User already exists"
// @Router      /register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if _, err := h.userSvc.Register(c.Request.Context(), req.newUser()); err != nil {
		writeError(c, err, "Failed to register user")
		return
	}
	message(c, http.StatusCreated, "User registered successfully")
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  handlers.LoginResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Email and password required"
// @Failure     401  {object}  handlers.ErrorResponse  "Incorrect password"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Email and password required")
		return
	}
	s, err := h.userSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err, "Failed to log in")
		return
	}
	ok(c, http.StatusOK, loginResponse("Login successful", s))
}

// AdminLogin godoc
// @ID          adminLogin
// @Summary     Admin log in
// @Description Like /login but restricted to admins; the token has a shorter lifetime.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  handlers.LoginResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Email and password required"
// @Failure     401  {object}  handlers.ErrorResponse  "Incorrect password"
// @Failure     404  {object}  handlers.ErrorResponse  "Admin not found"
// @Router      /admin/login [post]
func (h *Handlers) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Email and password required")
		return
	}
	s, err := h.userSvc.AdminLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err, "Failed to log in")
		return
	}
	ok(c, http.StatusOK, loginResponse("Admin login successful", s))
}

// CreateAdmin godoc
// @ID          createAdmin
// @Summary     Create an admin
// @Description Open while no admin exists; afterwards an admin token is required.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.RegisterRequest  true  "Account"
// @Success     201  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing field"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Failure     409  {object}  handlers.ErrorResponse  "User already exists"
// @Router      /create-admin [post]
func (h *Handlers) CreateAdmin(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if _, err := h.userSvc.CreateAdmin(c.Request.Context(), req.newUser(), middleware.IsAdmin(c)); err != nil {
		writeError(c, err, "Failed to create admin")
		return
	}
	message(c, http.StatusCreated, "Admin created successfully")
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users (admin)
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.User
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	us, err := h.userSvc.List(c.Request.Context())
	if err != nil {
		writeError(c, err, "Failed to fetch users")
		return
	}
	ok(c, http.StatusOK, us)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a profile
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "User ID"
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid user id"
// @Failure     403  {object}  handlers.ErrorResponse  "Access denied"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /user/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id := c.Param("id")
	if !selfOrAdmin(c, id) {
		return
	}
	u, err := h.userSvc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to fetch user")
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Update a profile
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                      true  "User ID"
// @Param       body  body  handlers.UpdateUserRequest  true  "Fields to change"
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid user id or email"
// @Failure     403  {object}  handlers.ErrorResponse  "Access denied"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Email already in use"
// @Router      /user/{id} [put]
func (h *Handlers) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	if !selfOrAdmin(c, id) {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	u, err := h.userSvc.Update(c.Request.Context(), id, domain.UserPatch{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Address:         req.Address,
		ProfileImageURL: req.ProfileImageURL,
	})
	if err != nil {
		writeError(c, err, "Failed to update user")
		return
	}
	ok(c, http.StatusOK, u)
}

// UploadProfileImage godoc
// @ID          uploadProfileImage
// @Summary     Upload a profile image
// @Description PNG, JPG, JPEG or GIF. The image is downscaled and stored as a data URL.
// @Tags        Users
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id     path      string  true  "User ID"
// @Param       image  formData  file    true  "Image file"
// @Success     200  {object}  handlers.ProfileImageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid image"
// @Failure     403  {object}  handlers.ErrorResponse  "Access denied"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     413  {object}  handlers.ErrorResponse  "Image too large"
// @Router      /user/{id}/profile-image [post]
func (h *Handlers) UploadProfileImage(c *gin.Context) {
	id := c.Param("id")
	if !domain.IsValidID(id) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid user id")
		return
	}
	if !selfOrAdmin(c, id) {
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "Image too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "No image file provided")
		return
	}
	if fh.Filename == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "No file selected")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "No image file provided")
		return
	}
	defer f.Close()

	url, err := h.userSvc.SetProfileImage(c.Request.Context(), id, fh.Filename, f)
	if err != nil {
		writeError(c, err, "Failed to upload profile image")
		return
	}
	ok(c, http.StatusOK, ProfileImageResponse{URL: url, Message: "Profile image uploaded successfully"})
}

// DeleteProfileImage godoc
// @ID          deleteProfileImage
// @Summary     Remove the profile image
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "User ID"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid user id"
// @Failure     403  {object}  handlers.ErrorResponse  "Access denied"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /user/{id}/profile-image [delete]
func (h *Handlers) DeleteProfileImage(c *gin.Context) {
	id := c.Param("id")
	if !selfOrAdmin(c, id) {
		return
	}
	if err := h.userSvc.ClearProfileImage(c.Request.Context(), id); err != nil {
		writeError(c, err, "Failed to remove profile image")
		return
	}
	message(c, http.StatusOK, "Profile image removed successfully")
}
