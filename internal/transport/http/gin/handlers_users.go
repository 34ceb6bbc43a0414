package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-events/internal/service"
)

// @Summary  Register user
// @Tags     users
// @Param    req body  RegisterRequest true "payload"
// @Success  201 {object} RegisterResponse
// @Failure  400 {object} ValidationErrorResponse
// @Failure  409 {object} ErrorResponse "email taken"
// @Router   /users/register [post]
func handleRegister(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if !bindJSON(c, &req) {
			return
		}

		u, err := svcs.Users.Register(c.Request.Context(), req.input())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, RegisterResponse{User: u})
	}
}

// @Summary  Log in
// @Tags     users
// @Param    req body  LoginRequest true "credentials"
// @Success  200 {object} LoginResponse
// @Failure  401 {object} ErrorResponse "invalid credentials"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /users/login [post]
func handleLogin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if !bindJSON(c, &req) {
			return
		}

		token, u, err := svcs.Users.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, LoginResponse{Token: token, User: u})
	}
}

// @Summary  Get user
// @Tags     users
// @Security BearerAuth
// @Param    id  path  string  true  "User ID"
// @Success  200 {object} domain.User
// @Failure  404 {object} ErrorResponse
// @Router   /users/{id} [get]
func handleGetUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svcs.Users.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, u)
	}
}

// @Summary  Update user profile
// @Tags     users
// @Security BearerAuth
// @Param    id  path  string  true  "User ID"
// @Param    req body  UpdateUserRequest true "fields to change"
// @Success  200 {object} domain.User
// @Failure  404 {object} ErrorResponse
// @Router   /users/{id} [put]
func handleUpdateUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateUserRequest
		if !bindJSON(c, &req) {
			return
		}

		caller, _ := identity(c)
		u, err := svcs.Users.Update(c.Request.Context(), caller.UserID, c.Param("id"), req.input())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, u)
	}
}

// @Summary  Delete user
// @Tags     users
// @Security BearerAuth
// @Param    id  path  string  true  "User ID"
// @Success  200 {object} MessageResponse
// @Failure  404 {object} ErrorResponse
// @Router   /users/{id} [delete]
func handleDeleteUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, _ := identity(c)
		if err := svcs.Users.Delete(c.Request.Context(), caller.UserID, c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, MessageResponse{Message: "user deleted"})
	}
}

// @Summary  List a user's purchased tickets
// @Tags     users
// @Security BearerAuth
// @Param    id  path  string  true  "User ID"
// @Success  200 {object} BoughtTicketsResponse
// @Failure  404 {object} ErrorResponse
// @Router   /users/boughtTickets/{id} [get]
func handleBoughtTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tickets, err := svcs.Users.BoughtTickets(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, BoughtTicketsResponse{Tickets: tickets})
	}
}
