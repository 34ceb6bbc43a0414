package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-events/internal/service"
)

// @Summary  List events
// @Description Anonymous callers see public events only.
// @Tags     events
// @Success  200 {array} domain.Event
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, authed := identity(c)

		list, err := svcs.Events.List(c.Request.Context(), !authed)
		if err != nil {
			respondErr(c, err)
			return
		}

		// ETag + Cache-Control 15s for anonymous listings
		writeJSONWithCache(c, http.StatusOK, list, cacheControl(authed, 15), true)
	}
}

// @Summary  Get event
// @Tags     events
// @Param    id  path  string  true  "Event ID"
// @Success  200 {object} domain.Event
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, authed := identity(c)

		e, err := svcs.Events.Get(c.Request.Context(), c.Param("id"), authed)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, e, cacheControl(authed || !e.IsPublic, 60), true)
	}
}

// @Summary  Create event
// @Tags     events
// @Security BearerAuth
// @Param    req body  EventRequest true "event"
// @Success  201 {object} domain.Event
// @Failure  400 {object} ValidationErrorResponse
// @Router   /events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EventRequest
		if !bindJSON(c, &req) {
			return
		}

		caller, _ := identity(c)
		e, err := svcs.Events.Create(c.Request.Context(), caller.UserID, req.input())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, e)
	}
}

// @Summary  Update event
// @Tags     events
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID"
// @Param    req body  EventRequest true "event"
// @Success  200 {object} domain.Event
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id} [put]
func handleUpdateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EventRequest
		if !bindJSON(c, &req) {
			return
		}

		caller, _ := identity(c)
		e, err := svcs.Events.Update(c.Request.Context(), caller.UserID, c.Param("id"), req.input())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Delete event
// @Tags     events
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID"
// @Success  200 {object} MessageResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id} [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, _ := identity(c)
		if err := svcs.Events.Delete(c.Request.Context(), caller.UserID, c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, MessageResponse{Message: "event deleted"})
	}
}

// @Summary  List buyers of an event
// @Tags     events
// @Security BearerAuth
// @Param    id  path  string  true  "Event ID"
// @Success  200 {array} domain.Buyer
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/buyers [get]
func handleListBuyers(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, _ := identity(c)
		buyers, err := svcs.Events.Buyers(c.Request.Context(), caller.UserID, c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, buyers)
	}
}
